package invoicelink

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledger_bridge/pkg/apperr"
	"ledger_bridge/pkg/pipedrive"
	"ledger_bridge/pkg/quickbooks"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLinker(deals *stubDeals, alloc *stubAllocator) *Linker {
	customers := stubCustomers{byName: map[string]string{"Acme Corp": "58", "Ana Silva": "59"}}
	l := NewLinker(deals, customers, &staticAuth{}, alloc, pipedrive.NewFieldTable(pipedrive.StaticFields(), nil), invoiceKey, zap.NewNop())
	l.now = func() time.Time { return time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC) }
	return l
}

func createdAllocation(docNumber string) *quickbooks.Allocation {
	return &quickbooks.Allocation{
		Invoice:         &quickbooks.Invoice{ID: "145", DocNumber: docNumber},
		RequestedNumber: docNumber,
	}
}

func TestCreateForDeal(t *testing.T) {
	deals := &stubDeals{deal: pipedrive.Deal{
		"id":       77.0,
		"title":    "Website redesign",
		"value":    4500.0,
		"org_name": "Acme Corp",
	}}
	alloc := &stubAllocator{result: createdAllocation("1042")}

	got, err := newTestLinker(deals, alloc).CreateForDeal(context.Background(), "9130", 77, "")

	require.NoError(t, err)
	assert.Equal(t, "1042", got.Invoice.DocNumber)
	require.Len(t, alloc.drafts, 1)
	draft := alloc.drafts[0]
	assert.Equal(t, "58", draft.CustomerID)
	assert.Equal(t, "Acme Corp", draft.CustomerName)
	require.Len(t, draft.Lines, 1)
	assert.Equal(t, "Website redesign", draft.Lines[0].Description)
	assert.True(t, draft.Lines[0].Amount.Equal(decimal.NewFromInt(4500)))
	assert.Equal(t, "2024-05-10", draft.TxnDate)
	assert.Equal(t, "deal-77", draft.IdempotencyKey)
	assert.Equal(t, map[string]interface{}{invoiceKey: "1042"}, deals.updates)
}

func TestCreateForDeal_FallsBackToPersonName(t *testing.T) {
	deals := &stubDeals{deal: pipedrive.Deal{"id": 78.0, "title": "Audit", "value": 900.0, "person_name": "Ana Silva"}}
	alloc := &stubAllocator{result: createdAllocation("7")}

	_, err := newTestLinker(deals, alloc).CreateForDeal(context.Background(), "9130", 78, "7")

	require.NoError(t, err)
	assert.Equal(t, "59", alloc.drafts[0].CustomerID)
	assert.Equal(t, []string{"7"}, alloc.explicit)
}

func TestCreateForDeal_AlreadyInvoiced(t *testing.T) {
	deals := &stubDeals{deal: pipedrive.Deal{"id": 77.0, "org_name": "Acme Corp", invoiceKey: "1042"}}
	alloc := &stubAllocator{}

	_, err := newTestLinker(deals, alloc).CreateForDeal(context.Background(), "9130", 77, "")

	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Empty(t, alloc.drafts)
}

func TestCreateForDeal_UnknownCustomer(t *testing.T) {
	deals := &stubDeals{deal: pipedrive.Deal{"id": 77.0, "org_name": "Globex", "value": 10.0}}
	alloc := &stubAllocator{}

	_, err := newTestLinker(deals, alloc).CreateForDeal(context.Background(), "9130", 77, "")

	assert.ErrorContains(t, err, "resolve customer for deal 77")
	assert.Empty(t, alloc.drafts)
}

func TestCreateForDeal_AllocationFailureSkipsWriteBack(t *testing.T) {
	deals := &stubDeals{deal: pipedrive.Deal{"id": 77.0, "org_name": "Acme Corp", "value": 10.0}}
	alloc := &stubAllocator{err: &apperr.UpstreamError{Op: "create invoice", Status: 400}}

	got, err := newTestLinker(deals, alloc).CreateForDeal(context.Background(), "9130", 77, "")

	assert.Nil(t, got)
	assert.Error(t, err)
	assert.Empty(t, deals.updates)
}

func TestCreateForDeal_WriteBackFailureReturnsInvoice(t *testing.T) {
	deals := &stubDeals{
		deal:      pipedrive.Deal{"id": 77.0, "org_name": "Acme Corp", "value": 10.0},
		updateErr: &apperr.UpstreamError{Op: "update deal 77", Status: 502},
	}
	alloc := &stubAllocator{result: createdAllocation("1042")}

	got, err := newTestLinker(deals, alloc).CreateForDeal(context.Background(), "9130", 77, "")

	var upstream *apperr.UpstreamError
	require.True(t, errors.As(err, &upstream))
	require.NotNil(t, got)
	assert.Equal(t, "1042", got.Invoice.DocNumber)
}
