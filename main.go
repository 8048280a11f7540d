package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ledger_bridge/pkg/apperr"
	"ledger_bridge/pkg/config"
	"ledger_bridge/pkg/logging"
	"ledger_bridge/pkg/pipedrive"
	"ledger_bridge/pkg/quickbooks"
	"ledger_bridge/pkg/store"
	"ledger_bridge/pkg/token"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds the components every command is built from.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	creds      *store.CredentialStore
	requests   *store.RequestStore
	tokens     *token.Manager
	authorizer *quickbooks.Authorizer
	ledger     *quickbooks.Client
	crm        *pipedrive.Client
	fieldKey   string
}

func newApp(envFile string) (*app, error) {
	var envFiles []string
	if envFile != "" {
		envFiles = append(envFiles, envFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	db, err := store.InitDB(cfg.Database.Path, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}
	creds := store.NewCredentialStore(db)

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	oauth := quickbooks.OAuthConfig(cfg.QuickBooks)

	fieldKey := cfg.Pipedrive.InvoiceNumberFieldKey
	if fieldKey == "" {
		fieldKey = pipedrive.DefaultInvoiceNumberFieldKey
	}

	return &app{
		cfg:        cfg,
		log:        log,
		creds:      creds,
		requests:   store.NewRequestStore(db),
		tokens:     token.NewManager(creds, oauth, log, token.WithHTTPClient(httpClient)),
		authorizer: quickbooks.NewAuthorizer(oauth, creds, httpClient, log),
		ledger: quickbooks.NewClient(cfg.QuickBooks.APIBaseURL, cfg.QuickBooks.MinorVersion,
			quickbooks.WithMinRequestInterval(cfg.QuickBooks.MinRequestInterval),
			quickbooks.WithTimeout(cfg.HTTPTimeout)),
		crm:      pipedrive.NewClient(cfg.Pipedrive.APIBaseURL, cfg.Pipedrive.APIToken, cfg.HTTPTimeout),
		fieldKey: fieldKey,
	}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error (%s): %v\n", apperr.Kind(err), err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	var a *app

	root := &cobra.Command{
		Use:           "ledger_bridge",
		Short:         "Create and track QuickBooks invoices for Pipedrive deals",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, err = newApp(envFile)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before the environment (default .env)")

	appRef := func() *app { return a }
	root.AddCommand(
		newAuthorizeCmd(appRef),
		newServeCallbackCmd(appRef),
		newRealmsCmd(appRef),
		newCreateInvoiceCmd(appRef),
		newInvoiceStatusCmd(appRef),
		newFieldsCmd(appRef),
	)
	return root
}
