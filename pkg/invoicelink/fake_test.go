package invoicelink

import (
	"context"
	"errors"

	"ledger_bridge/pkg/pipedrive"
	"ledger_bridge/pkg/quickbooks"
	"ledger_bridge/pkg/token"
)

type staticAuth struct {
	calls int
}

func (s *staticAuth) WithAuthenticatedCall(ctx context.Context, _ string, op token.Operation) error {
	s.calls++
	return op(ctx, "test-access-token")
}

type stubFinder struct {
	invoices []quickbooks.Invoice
	err      error
	queries  []string
}

func (s *stubFinder) FindInvoicesByDocNumber(_ context.Context, _, _, docNumber string) ([]quickbooks.Invoice, error) {
	s.queries = append(s.queries, docNumber)
	return s.invoices, s.err
}

type stubDeals struct {
	deal      pipedrive.Deal
	getErr    error
	updateErr error
	updates   map[string]interface{}
}

func (s *stubDeals) GetDeal(context.Context, int64) (pipedrive.Deal, error) {
	return s.deal, s.getErr
}

func (s *stubDeals) UpdateDealField(_ context.Context, _ int64, key string, value interface{}) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	if s.updates == nil {
		s.updates = make(map[string]interface{})
	}
	s.updates[key] = value
	return nil
}

type stubCustomers struct {
	byName map[string]string
}

func (s stubCustomers) FindCustomerByName(_ context.Context, _, _, name string) (*quickbooks.Customer, error) {
	id, ok := s.byName[name]
	if !ok {
		return nil, errors.New("customer not found")
	}
	return &quickbooks.Customer{ID: id, DisplayName: name, Active: true}, nil
}

type stubAllocator struct {
	drafts   []quickbooks.InvoiceDraft
	explicit []string
	result   *quickbooks.Allocation
	err      error
}

func (s *stubAllocator) AllocateAndCreate(_ context.Context, _ string, draft quickbooks.InvoiceDraft, explicitNumber string) (*quickbooks.Allocation, error) {
	s.drafts = append(s.drafts, draft)
	s.explicit = append(s.explicit, explicitNumber)
	return s.result, s.err
}
