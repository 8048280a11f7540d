// Package invoicelink connects CRM deals to the accounting invoices recorded
// against them.
package invoicelink

import (
	"context"
	"time"

	"ledger_bridge/pkg/pipedrive"
	"ledger_bridge/pkg/quickbooks"
	"ledger_bridge/pkg/token"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InvoiceFinder searches invoices by exact document number.
type InvoiceFinder interface {
	FindInvoicesByDocNumber(ctx context.Context, realmID, accessToken, docNumber string) ([]quickbooks.Invoice, error)
}

// LinkedInvoice is the accounting invoice matched to a deal.
type LinkedInvoice struct {
	ID           string          `json:"id"`
	DocNumber    string          `json:"docNumber"`
	CustomerName string          `json:"customerName"`
	TotalAmt     decimal.Decimal `json:"totalAmt"`
	Balance      decimal.Decimal `json:"balance"`
	DueDate      string          `json:"dueDate,omitempty"`
	Status       Status          `json:"status"`
}

// LinkResult is the outcome of resolving a deal's invoice. A failed search is
// reported in Error, not returned.
type LinkResult struct {
	HasInvoiceNumber bool           `json:"hasInvoiceNumber"`
	InvoiceNumber    *string        `json:"invoiceNumber"`
	LinkedInvoice    *LinkedInvoice `json:"linkedInvoice"`
	Error            *string        `json:"error"`
}

type Resolver struct {
	finder   InvoiceFinder
	auth     quickbooks.Authenticator
	fields   *pipedrive.FieldTable
	fieldKey string
	log      *zap.Logger
	now      func() time.Time
}

func NewResolver(finder InvoiceFinder, auth quickbooks.Authenticator, fields *pipedrive.FieldTable, fieldKey string, log *zap.Logger) *Resolver {
	return &Resolver{
		finder:   finder,
		auth:     auth,
		fields:   fields,
		fieldKey: fieldKey,
		log:      log,
		now:      time.Now,
	}
}

// Resolve looks up the invoice whose document number is stored on deal. A
// deal without a number resolves without any accounting call.
func (r *Resolver) Resolve(ctx context.Context, realmID string, deal pipedrive.Deal) LinkResult {
	number, ok := r.fields.InvoiceNumber(deal, r.fieldKey)
	if !ok {
		return LinkResult{}
	}
	result := LinkResult{HasInvoiceNumber: true, InvoiceNumber: &number}

	invoices, err := token.Call(ctx, r.auth, realmID, func(ctx context.Context, accessToken string) ([]quickbooks.Invoice, error) {
		return r.finder.FindInvoicesByDocNumber(ctx, realmID, accessToken, number)
	})
	if err != nil {
		r.log.Warn("invoice search failed",
			zap.Int64("deal_id", deal.ID()),
			zap.String("doc_number", number),
			zap.Error(err))
		msg := err.Error()
		result.Error = &msg
		return result
	}
	if len(invoices) == 0 {
		return result
	}

	inv := invoices[0]
	result.LinkedInvoice = &LinkedInvoice{
		ID:           inv.ID,
		DocNumber:    inv.DocNumber,
		CustomerName: inv.CustomerRef.Name,
		TotalAmt:     inv.TotalAmt,
		Balance:      inv.Balance,
		DueDate:      inv.DueDate,
		Status:       DeriveStatus(inv.Balance, inv.TotalAmt, inv.DueDate, r.now()),
	}
	return result
}
