package invoicelink

import (
	"context"
	"fmt"
	"time"

	"ledger_bridge/pkg/apperr"
	"ledger_bridge/pkg/pipedrive"
	"ledger_bridge/pkg/quickbooks"
	"ledger_bridge/pkg/token"

	"go.uber.org/zap"
)

// DealStore reads deals and writes single fields back.
type DealStore interface {
	GetDeal(ctx context.Context, dealID int64) (pipedrive.Deal, error)
	UpdateDealField(ctx context.Context, dealID int64, key string, value interface{}) error
}

// CustomerFinder resolves an accounting customer by display name.
type CustomerFinder interface {
	FindCustomerByName(ctx context.Context, realmID, accessToken, name string) (*quickbooks.Customer, error)
}

// InvoiceAllocator numbers and creates invoices.
type InvoiceAllocator interface {
	AllocateAndCreate(ctx context.Context, realmID string, draft quickbooks.InvoiceDraft, explicitNumber string) (*quickbooks.Allocation, error)
}

// Linker creates the accounting invoice for a deal and records its document
// number on the deal.
type Linker struct {
	deals     DealStore
	customers CustomerFinder
	auth      quickbooks.Authenticator
	alloc     InvoiceAllocator
	fields    *pipedrive.FieldTable
	fieldKey  string
	log       *zap.Logger
	now       func() time.Time
}

func NewLinker(deals DealStore, customers CustomerFinder, auth quickbooks.Authenticator, alloc InvoiceAllocator,
	fields *pipedrive.FieldTable, fieldKey string, log *zap.Logger) *Linker {
	return &Linker{
		deals:     deals,
		customers: customers,
		auth:      auth,
		alloc:     alloc,
		fields:    fields,
		fieldKey:  fieldKey,
		log:       log,
		now:       time.Now,
	}
}

// CreateForDeal invoices deal dealID. When the write-back to the deal fails
// the allocation is returned together with the error, since the invoice
// already exists.
func (l *Linker) CreateForDeal(ctx context.Context, realmID string, dealID int64, explicitNumber string) (*quickbooks.Allocation, error) {
	deal, err := l.deals.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if existing, ok := l.fields.InvoiceNumber(deal, l.fieldKey); ok {
		return nil, &apperr.ValidationError{
			Field:   "deal",
			Message: fmt.Sprintf("deal %d already has invoice number %s", dealID, existing),
		}
	}

	name := customerName(deal)
	if name == "" {
		return nil, &apperr.ValidationError{Field: "CustomerName", Message: "deal has no organization, person or title"}
	}
	customer, err := token.Call(ctx, l.auth, realmID, func(ctx context.Context, accessToken string) (*quickbooks.Customer, error) {
		return l.customers.FindCustomerByName(ctx, realmID, accessToken, name)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve customer for deal %d: %w", dealID, err)
	}

	draft := quickbooks.InvoiceDraft{
		CustomerID:   customer.ID,
		CustomerName: customer.DisplayName,
		Lines: []quickbooks.LineItem{
			{Description: deal.Title(), Amount: deal.Value()},
		},
		TxnDate:        l.now().Format("2006-01-02"),
		Memo:           fmt.Sprintf("Deal #%d", dealID),
		IdempotencyKey: fmt.Sprintf("deal-%d", dealID),
	}

	alloc, err := l.alloc.AllocateAndCreate(ctx, realmID, draft, explicitNumber)
	if err != nil {
		return nil, err
	}

	if err := l.deals.UpdateDealField(ctx, dealID, l.fieldKey, alloc.Invoice.DocNumber); err != nil {
		l.log.Error("failed to record invoice number on deal",
			zap.Int64("deal_id", dealID),
			zap.String("invoice_id", alloc.Invoice.ID),
			zap.String("doc_number", alloc.Invoice.DocNumber),
			zap.Error(err))
		return alloc, err
	}

	l.log.Info("invoice linked to deal",
		zap.Int64("deal_id", dealID),
		zap.String("invoice_id", alloc.Invoice.ID),
		zap.String("doc_number", alloc.Invoice.DocNumber))
	return alloc, nil
}

// customerName prefers the deal's organization, then its contact person,
// then its title.
func customerName(deal pipedrive.Deal) string {
	if name := deal.OrgName(); name != "" {
		return name
	}
	if name := deal.PersonName(); name != "" {
		return name
	}
	return deal.Title()
}
