package quickbooks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"ledger_bridge/pkg/apperr"
	"ledger_bridge/pkg/store"
	"ledger_bridge/pkg/token"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Authenticator runs an operation with a valid access token for a realm.
type Authenticator interface {
	WithAuthenticatedCall(ctx context.Context, realmID string, op token.Operation) error
}

// RequestRecorder remembers the invoice created for an idempotency key.
type RequestRecorder interface {
	Find(ctx context.Context, key string) (*store.InvoiceRequest, error)
	Record(ctx context.Context, req *store.InvoiceRequest) error
	UpdateDocNumber(ctx context.Context, key, docNumber string) error
}

// NumberingWarning reports that the latest document number is not numeric or
// has no successor, so the sequence restarted at 1 and may collide with
// earlier invoices.
type NumberingWarning struct {
	LatestDocNumber string
}

func (w *NumberingWarning) Error() string {
	return fmt.Sprintf("latest document number %q is not numeric; numbering restarts at 1", w.LatestDocNumber)
}

// Allocation is the outcome of AllocateAndCreate.
type Allocation struct {
	Invoice         *Invoice
	RequestedNumber string
	// Reconciled is set when the accounting service assigned its own number
	// and a sparse update restored the requested one.
	Reconciled bool
	// Replayed is set when the idempotency key had already produced Invoice.
	Replayed bool
	Warning  *NumberingWarning
}

// Allocator assigns document numbers to new invoices.
type Allocator struct {
	client   *Client
	auth     Authenticator
	requests RequestRecorder
	validate *validator.Validate
	log      *zap.Logger
	// Strict fails instead of restarting at 1 when the latest number is not numeric.
	Strict bool
}

// NewAllocator creates an allocator. requests may be nil, in which case
// idempotency keys are ignored.
func NewAllocator(client *Client, auth Authenticator, requests RequestRecorder, log *zap.Logger) *Allocator {
	return &Allocator{
		client:   client,
		auth:     auth,
		requests: requests,
		validate: newDraftValidator(),
		log:      log,
	}
}

func newDraftValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("2006-01-02", fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks the draft before anything is sent.
func (a *Allocator) Validate(draft InvoiceDraft) error {
	err := a.validate.Struct(draft)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &apperr.ValidationError{Field: fe.Namespace(), Message: validationMessage(fe)}
	}
	return &apperr.ValidationError{Message: err.Error()}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must contain at least " + fe.Param() + " item(s)"
	case "gt":
		return "must be greater than " + fe.Param()
	case "isodate":
		return "must be a date in YYYY-MM-DD format"
	default:
		return "failed on " + fe.Tag()
	}
}

// NextNumber computes the document number that follows the latest one.
// When the latest number is not numeric, or is the largest int64, the candidate
// is "1" and a warning is returned.
func NextNumber(latest *Invoice) (string, *NumberingWarning) {
	if latest == nil {
		return "1", nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(latest.DocNumber), 10, 64)
	if err != nil || n == math.MaxInt64 {
		return "1", &NumberingWarning{LatestDocNumber: latest.DocNumber}
	}
	return strconv.FormatInt(n+1, 10), nil
}

// AllocateAndCreate creates an invoice for draft carrying explicitNumber, or
// the next number after the latest invoice when explicitNumber is empty. If
// the accounting service overrides the number it is patched back; a failed
// patch still returns the created invoice.
func (a *Allocator) AllocateAndCreate(ctx context.Context, realmID string, draft InvoiceDraft, explicitNumber string) (*Allocation, error) {
	if err := a.Validate(draft); err != nil {
		return nil, err
	}

	if replay, err := a.replay(ctx, realmID, draft.IdempotencyKey); err != nil || replay != nil {
		return replay, err
	}

	alloc := &Allocation{RequestedNumber: strings.TrimSpace(explicitNumber)}
	if alloc.RequestedNumber == "" {
		latest, err := a.latest(ctx, realmID)
		if err != nil {
			return nil, err
		}
		alloc.RequestedNumber, alloc.Warning = NextNumber(latest)
		if alloc.Warning != nil {
			if a.Strict {
				return nil, alloc.Warning
			}
			a.log.Warn("document numbering restarted", zap.String("realm_id", realmID), zap.Error(alloc.Warning))
		}
	}

	var created *Invoice
	err := a.auth.WithAuthenticatedCall(ctx, realmID, func(ctx context.Context, accessToken string) error {
		var err error
		created, err = a.client.CreateInvoice(ctx, realmID, accessToken, draft.toInvoice(alloc.RequestedNumber))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create invoice %s for realm %s: %w", alloc.RequestedNumber, realmID, err)
	}
	alloc.Invoice = created
	a.log.Info("created invoice",
		zap.String("realm_id", realmID),
		zap.String("invoice_id", created.ID),
		zap.String("requested_number", alloc.RequestedNumber),
		zap.String("assigned_number", created.DocNumber))

	a.record(ctx, realmID, draft.IdempotencyKey, alloc)

	if created.DocNumber == alloc.RequestedNumber {
		return alloc, nil
	}

	var patched *Invoice
	err = a.auth.WithAuthenticatedCall(ctx, realmID, func(ctx context.Context, accessToken string) error {
		var err error
		patched, err = a.client.SparseUpdateDocNumber(ctx, realmID, accessToken, created.ID, created.SyncToken, alloc.RequestedNumber)
		return err
	})
	if err != nil {
		a.log.Warn("could not restore requested document number, keeping assigned number",
			zap.String("realm_id", realmID),
			zap.String("invoice_id", created.ID),
			zap.String("assigned_number", created.DocNumber),
			zap.Error(err))
		return alloc, nil
	}

	alloc.Invoice = patched
	alloc.Reconciled = true
	if draft.IdempotencyKey != "" && a.requests != nil {
		if err := a.requests.UpdateDocNumber(ctx, draft.IdempotencyKey, patched.DocNumber); err != nil {
			a.log.Warn("could not update invoice request", zap.String("key", draft.IdempotencyKey), zap.Error(err))
		}
	}
	return alloc, nil
}

func (a *Allocator) latest(ctx context.Context, realmID string) (*Invoice, error) {
	var latest *Invoice
	err := a.auth.WithAuthenticatedCall(ctx, realmID, func(ctx context.Context, accessToken string) error {
		var err error
		latest, err = a.client.LatestNumberedInvoice(ctx, realmID, accessToken)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find latest document number for realm %s: %w", realmID, err)
	}
	return latest, nil
}

func (a *Allocator) replay(ctx context.Context, realmID, key string) (*Allocation, error) {
	if key == "" || a.requests == nil {
		return nil, nil
	}
	prior, err := a.requests.Find(ctx, key)
	if err != nil || prior == nil {
		return nil, err
	}
	if prior.RealmID != realmID {
		return nil, &apperr.ValidationError{Field: "IdempotencyKey", Message: "was already used for another realm"}
	}

	var invoice *Invoice
	err = a.auth.WithAuthenticatedCall(ctx, realmID, func(ctx context.Context, accessToken string) error {
		var err error
		invoice, err = a.client.GetInvoice(ctx, realmID, accessToken, prior.InvoiceID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read invoice %s for replayed request %s: %w", prior.InvoiceID, key, err)
	}
	a.log.Info("replayed invoice request", zap.String("key", key), zap.String("invoice_id", invoice.ID))
	return &Allocation{
		Invoice:         invoice,
		RequestedNumber: prior.RequestedNumber,
		Replayed:        true,
	}, nil
}

func (a *Allocator) record(ctx context.Context, realmID, key string, alloc *Allocation) {
	if key == "" || a.requests == nil {
		return
	}
	err := a.requests.Record(ctx, &store.InvoiceRequest{
		Key:             key,
		RealmID:         realmID,
		InvoiceID:       alloc.Invoice.ID,
		RequestedNumber: alloc.RequestedNumber,
		DocNumber:       alloc.Invoice.DocNumber,
	})
	if err != nil {
		a.log.Warn("could not record invoice request", zap.String("key", key), zap.Error(err))
	}
}

func (d InvoiceDraft) toInvoice(docNumber string) *NewInvoice {
	inv := &NewInvoice{
		DocNumber:   docNumber,
		TxnDate:     d.TxnDate,
		DueDate:     d.DueDate,
		CustomerRef: Ref{Value: d.CustomerID, Name: d.CustomerName},
	}
	if d.Memo != "" {
		inv.CustomerMemo = &MemoRef{Value: d.Memo}
	}
	for _, item := range d.Lines {
		line := Line{
			Description: item.Description,
			Amount:      item.Amount,
			DetailType:  "SalesItemLineDetail",
			SalesItemLineDetail: &SalesItemLineDetail{
				ItemRef: item.ItemRef,
				Qty:     item.Quantity,
			},
		}
		if item.Quantity != nil && !item.Quantity.IsZero() {
			unit := item.Amount.Div(*item.Quantity)
			line.SalesItemLineDetail.UnitPrice = &unit
		}
		inv.Line = append(inv.Line, line)
	}
	return inv
}
