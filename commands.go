package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"ledger_bridge/pkg/invoicelink"
	"ledger_bridge/pkg/logging"
	"ledger_bridge/pkg/pipedrive"
	"ledger_bridge/pkg/quickbooks"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAuthorizeCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "authorize",
		Short: "Connect a QuickBooks company and store its credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			state := uuid.NewString()
			fmt.Fprintf(cmd.OutOrStdout(), "Open the following URL in your browser to authorize the application:\n%s\n", a().authorizer.AuthorizationURL(state))
			return a().authorizer.ServeCallback(cmd.Context(), state)
		},
	}
}

func newServeCallbackCmd(a func() *app) *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "serve-callback",
		Short: "Wait for the OAuth redirect of an authorization URL issued elsewhere",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a().authorizer.ServeCallback(cmd.Context(), state)
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "state parameter of the issued authorization URL")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func newRealmsCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "realms",
		Short: "List connected QuickBooks companies",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := a().creds.List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "REALM\tACCESS TOKEN\tACCESS EXPIRES\tREFRESH EXPIRES")
			for _, c := range creds {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.RealmID, logging.MaskToken(c.AccessToken),
					c.AccessExpiresAt.Format("2006-01-02 15:04:05"), c.RefreshExpiresAt.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
}

func newCreateInvoiceCmd(a func() *app) *cobra.Command {
	var realmID, number string
	var dealID int64
	cmd := &cobra.Command{
		Use:   "create-invoice",
		Short: "Create the QuickBooks invoice for a deal and store its number on the deal",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := a()
			fields := loadFields(cmd, app)

			alloc := quickbooks.NewAllocator(app.ledger, app.tokens, app.requests, app.log)
			alloc.Strict = app.cfg.QuickBooks.StrictNumbering
			linker := invoicelink.NewLinker(app.crm, app.ledger, app.tokens, alloc, fields, app.fieldKey, app.log)

			result, err := linker.CreateForDeal(cmd.Context(), realmID, dealID, number)
			if result != nil {
				if werr := writeJSON(cmd.OutOrStdout(), allocationOutput(result)); werr != nil {
					return werr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&realmID, "realm", "", "QuickBooks realm (company) id")
	cmd.Flags().Int64Var(&dealID, "deal", 0, "Pipedrive deal id")
	cmd.Flags().StringVar(&number, "number", "", "document number to use instead of the next in sequence")
	_ = cmd.MarkFlagRequired("realm")
	_ = cmd.MarkFlagRequired("deal")
	return cmd
}

type allocationResult struct {
	InvoiceID       string `json:"invoiceId"`
	DocNumber       string `json:"docNumber"`
	RequestedNumber string `json:"requestedNumber"`
	Reconciled      bool   `json:"reconciled"`
	Replayed        bool   `json:"replayed"`
	Warning         string `json:"warning,omitempty"`
}

func allocationOutput(a *quickbooks.Allocation) allocationResult {
	out := allocationResult{
		InvoiceID:       a.Invoice.ID,
		DocNumber:       a.Invoice.DocNumber,
		RequestedNumber: a.RequestedNumber,
		Reconciled:      a.Reconciled,
		Replayed:        a.Replayed,
	}
	if a.Warning != nil {
		out.Warning = a.Warning.Error()
	}
	return out
}

func newInvoiceStatusCmd(a func() *app) *cobra.Command {
	var realmID string
	var dealID int64
	cmd := &cobra.Command{
		Use:   "invoice-status",
		Short: "Show the QuickBooks invoice linked to a deal",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := a()
			deal, err := app.crm.GetDeal(cmd.Context(), dealID)
			if err != nil {
				return err
			}
			fields := loadFields(cmd, app)

			resolver := invoicelink.NewResolver(app.ledger, app.tokens, fields, app.fieldKey, app.log)
			return writeJSON(cmd.OutOrStdout(), struct {
				DealID int64                      `json:"dealId"`
				Title  string                     `json:"title"`
				Fields []pipedrive.FormattedField `json:"fields"`
				invoicelink.LinkResult
			}{
				DealID:     deal.ID(),
				Title:      deal.Title(),
				Fields:     fields.NonEmptyFormattedFields(deal),
				LinkResult: resolver.Resolve(cmd.Context(), realmID, deal),
			})
		},
	}
	cmd.Flags().StringVar(&realmID, "realm", "", "QuickBooks realm (company) id")
	cmd.Flags().Int64Var(&dealID, "deal", 0, "Pipedrive deal id")
	_ = cmd.MarkFlagRequired("realm")
	_ = cmd.MarkFlagRequired("deal")
	return cmd
}

func newFieldsCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "List the deal custom fields known to the bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := pipedrive.LoadFieldTable(cmd.Context(), a().crm, pipedrive.StaticFields())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNAME\tTYPE")
			for _, d := range table.Definitions() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Key, d.Name, d.Type.Name())
			}
			return w.Flush()
		},
	}
}

// loadFields fetches the current field table, falling back to the compiled
// one when the CRM cannot be reached.
func loadFields(cmd *cobra.Command, app *app) *pipedrive.FieldTable {
	table, err := pipedrive.LoadFieldTable(cmd.Context(), app.crm, pipedrive.StaticFields())
	if err != nil {
		app.log.Warn("using static field table", zap.Error(err))
		return pipedrive.NewFieldTable(pipedrive.StaticFields(), nil)
	}
	return table
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

