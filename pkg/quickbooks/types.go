package quickbooks

import (
	"github.com/shopspring/decimal"
)

func init() {
	// The accounting API expects amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Ref is a QuickBooks entity reference.
type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type MemoRef struct {
	Value string `json:"value"`
}

type SalesItemLineDetail struct {
	ItemRef   *Ref             `json:"ItemRef,omitempty"`
	Qty       *decimal.Decimal `json:"Qty,omitempty"`
	UnitPrice *decimal.Decimal `json:"UnitPrice,omitempty"`
}

// Line is one invoice line as sent to and returned by the API.
type Line struct {
	ID                  string               `json:"Id,omitempty"`
	Description         string               `json:"Description,omitempty"`
	Amount              decimal.Decimal      `json:"Amount"`
	DetailType          string               `json:"DetailType"`
	SalesItemLineDetail *SalesItemLineDetail `json:"SalesItemLineDetail,omitempty"`
}

// Invoice is the accounting invoice. DocNumber is the human-facing number,
// independent of Id.
type Invoice struct {
	ID           string          `json:"Id,omitempty"`
	SyncToken    string          `json:"SyncToken,omitempty"`
	DocNumber    string          `json:"DocNumber,omitempty"`
	TxnDate      string          `json:"TxnDate,omitempty"`
	DueDate      string          `json:"DueDate,omitempty"`
	TotalAmt     decimal.Decimal `json:"TotalAmt"`
	Balance      decimal.Decimal `json:"Balance"`
	CustomerRef  Ref             `json:"CustomerRef"`
	CustomerMemo *MemoRef        `json:"CustomerMemo,omitempty"`
	Line         []Line          `json:"Line,omitempty"`
}

// NewInvoice is the create payload; totals and balance are computed by the accounting service.
type NewInvoice struct {
	DocNumber    string   `json:"DocNumber,omitempty"`
	TxnDate      string   `json:"TxnDate,omitempty"`
	DueDate      string   `json:"DueDate,omitempty"`
	CustomerRef  Ref      `json:"CustomerRef"`
	CustomerMemo *MemoRef `json:"CustomerMemo,omitempty"`
	Line         []Line   `json:"Line"`
}

// LineItem is a caller-facing invoice line.
type LineItem struct {
	Description string          `validate:"max=4000"`
	Amount      decimal.Decimal `validate:"gt=0"`
	ItemRef     *Ref
	Quantity    *decimal.Decimal
}

// InvoiceDraft is the input for creating an invoice.
type InvoiceDraft struct {
	CustomerID   string     `validate:"required"`
	CustomerName string     `validate:"required"`
	Lines        []LineItem `validate:"required,min=1,dive"`
	TxnDate      string     `validate:"omitempty,isodate"`
	DueDate      string     `validate:"omitempty,isodate"`
	Memo         string
	// IdempotencyKey makes repeated calls for the same logical request return the first invoice.
	IdempotencyKey string `validate:"max=128"`
}

// Customer is the subset of the customer entity used to reference it on invoices.
type Customer struct {
	ID          string `json:"Id"`
	DisplayName string `json:"DisplayName"`
	Active      bool   `json:"Active"`
}

type QueryResponse struct {
	QueryResponse struct {
		Invoice       []Invoice  `json:"Invoice"`
		Customer      []Customer `json:"Customer"`
		StartPosition int       `json:"startPosition"`
		MaxResults    int       `json:"maxResults"`
	} `json:"QueryResponse"`
	Time string `json:"time"`
}

type invoiceEnvelope struct {
	Invoice Invoice `json:"Invoice"`
}

// sparseDocNumberUpdate patches only DocNumber on an existing invoice.
type sparseDocNumberUpdate struct {
	ID        string `json:"Id"`
	SyncToken string `json:"SyncToken"`
	Sparse    bool   `json:"sparse"`
	DocNumber string `json:"DocNumber"`
}
