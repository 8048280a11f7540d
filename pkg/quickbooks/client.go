package quickbooks

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"ledger_bridge/pkg/apperr"

	"github.com/go-resty/resty/v2"
)

// invoicePageSize is the largest MAXRESULTS the query endpoint accepts.
const invoicePageSize = 1000

// Client talks to the QuickBooks Online accounting API. Every call takes the
// realm and a valid access token; obtaining the token is the caller's job.
type Client struct {
	resty        *resty.Client
	minorVersion string
	pageSize     int

	minInterval     time.Duration
	rateLimitMutex  sync.Mutex
	lastRequestTime time.Time
}

type ClientOption func(*Client)

// WithMinRequestInterval spaces consecutive requests by at least d.
func WithMinRequestInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.minInterval = d }
}

// WithQueryPageSize sets how many rows a paged query requests at a time.
func WithQueryPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithTimeout sets the transport timeout for every request.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.resty.SetTimeout(d) }
}

func NewClient(baseURL, minorVersion string, opts ...ClientOption) *Client {
	c := &Client{
		resty: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetHeader("Accept", "application/json"),
		minorVersion: minorVersion,
		pageSize:     invoicePageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resty.OnBeforeRequest(func(_ *resty.Client, _ *resty.Request) error {
		c.throttle()
		return nil
	})
	return c
}

func (c *Client) throttle() {
	if c.minInterval <= 0 {
		return
	}
	c.rateLimitMutex.Lock()
	defer c.rateLimitMutex.Unlock()

	if wait := c.minInterval - time.Since(c.lastRequestTime); wait > 0 {
		time.Sleep(wait)
	}
	c.lastRequestTime = time.Now()
}

func (c *Client) request(ctx context.Context, accessToken string) *resty.Request {
	r := c.resty.R().
		SetContext(ctx).
		SetAuthToken(accessToken)
	if c.minorVersion != "" {
		r.SetQueryParam("minorversion", c.minorVersion)
	}
	return r
}

func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &apperr.UpstreamError{Op: op, Err: err}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &apperr.UpstreamError{Op: op, Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// Query runs a QuickBooks query statement.
func (c *Client) Query(ctx context.Context, realmID, accessToken, statement string) (*QueryResponse, error) {
	resp, err := c.request(ctx, accessToken).
		SetPathParam("realm", realmID).
		SetQueryParam("query", statement).
		Get("/v3/company/{realm}/query")
	if err := checkResponse("query", resp, err); err != nil {
		return nil, err
	}

	var out QueryResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	return &out, nil
}

// FindInvoicesByDocNumber returns invoices whose DocNumber equals docNumber exactly.
func (c *Client) FindInvoicesByDocNumber(ctx context.Context, realmID, accessToken, docNumber string) ([]Invoice, error) {
	statement := fmt.Sprintf("SELECT * FROM Invoice WHERE DocNumber = '%s'", escapeQueryValue(docNumber))
	out, err := c.Query(ctx, realmID, accessToken, statement)
	if err != nil {
		return nil, err
	}
	return out.QueryResponse.Invoice, nil
}

// FindCustomerByName returns the customer whose DisplayName equals name, or
// an error wrapping apperr.ErrNotFound.
func (c *Client) FindCustomerByName(ctx context.Context, realmID, accessToken, name string) (*Customer, error) {
	statement := fmt.Sprintf("SELECT * FROM Customer WHERE DisplayName = '%s'", escapeQueryValue(name))
	out, err := c.Query(ctx, realmID, accessToken, statement)
	if err != nil {
		return nil, err
	}
	if len(out.QueryResponse.Customer) == 0 {
		return nil, fmt.Errorf("customer %q: %w", name, apperr.ErrNotFound)
	}
	return &out.QueryResponse.Customer[0], nil
}

// LatestNumberedInvoice returns the invoice with the highest document number,
// or nil when none carries one. Document numbers are ordered by numeric cast
// descending; a number that does not cast ranks as zero. Invoices are paged
// newest first, so on a tie the most recently created one wins.
func (c *Client) LatestNumberedInvoice(ctx context.Context, realmID, accessToken string) (*Invoice, error) {
	var latest *Invoice
	var latestN int64

	for start := 1; ; start += c.pageSize {
		statement := fmt.Sprintf("SELECT * FROM Invoice ORDERBY MetaData.CreateTime DESC STARTPOSITION %d MAXRESULTS %d", start, c.pageSize)
		out, err := c.Query(ctx, realmID, accessToken, statement)
		if err != nil {
			return nil, err
		}

		page := out.QueryResponse.Invoice
		for i := range page {
			if strings.TrimSpace(page[i].DocNumber) == "" {
				continue
			}
			if n := numericCast(page[i].DocNumber); latest == nil || n > latestN {
				inv := page[i]
				latest, latestN = &inv, n
			}
		}
		if len(page) < c.pageSize {
			return latest, nil
		}
	}
}

func (c *Client) GetInvoice(ctx context.Context, realmID, accessToken, invoiceID string) (*Invoice, error) {
	resp, err := c.request(ctx, accessToken).
		SetPathParams(map[string]string{"realm": realmID, "id": invoiceID}).
		Get("/v3/company/{realm}/invoice/{id}")
	if err := checkResponse("read invoice "+invoiceID, resp, err); err != nil {
		return nil, err
	}
	return decodeInvoice(resp.Body())
}

func (c *Client) CreateInvoice(ctx context.Context, realmID, accessToken string, invoice *NewInvoice) (*Invoice, error) {
	resp, err := c.request(ctx, accessToken).
		SetPathParam("realm", realmID).
		SetHeader("Content-Type", "application/json").
		SetBody(invoice).
		Post("/v3/company/{realm}/invoice")
	if err := checkResponse("create invoice", resp, err); err != nil {
		return nil, err
	}
	return decodeInvoice(resp.Body())
}

// SparseUpdateDocNumber sets DocNumber on an existing invoice without resubmitting the rest.
func (c *Client) SparseUpdateDocNumber(ctx context.Context, realmID, accessToken, invoiceID, syncToken, docNumber string) (*Invoice, error) {
	resp, err := c.request(ctx, accessToken).
		SetPathParam("realm", realmID).
		SetHeader("Content-Type", "application/json").
		SetBody(sparseDocNumberUpdate{
			ID:        invoiceID,
			SyncToken: syncToken,
			Sparse:    true,
			DocNumber: docNumber,
		}).
		Post("/v3/company/{realm}/invoice")
	if err := checkResponse("update invoice "+invoiceID, resp, err); err != nil {
		return nil, err
	}
	return decodeInvoice(resp.Body())
}

func decodeInvoice(body []byte) (*Invoice, error) {
	var env invoiceEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode invoice response: %w", err)
	}
	return &env.Invoice, nil
}

// escapeQueryValue escapes a literal for a single-quoted query string.
func escapeQueryValue(v string) string {
	return strings.ReplaceAll(v, "'", `\'`)
}

func numericCast(docNumber string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(docNumber), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

