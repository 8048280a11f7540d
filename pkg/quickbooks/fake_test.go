package quickbooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"ledger_bridge/pkg/token"
)

// staticAuth hands every operation the same token.
type staticAuth struct {
	calls int
}

func (s *staticAuth) WithAuthenticatedCall(ctx context.Context, _ string, op token.Operation) error {
	s.calls++
	return op(ctx, "test-access-token")
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]interface{}
}

// fakeLedger is a minimal stand-in for the accounting API.
type fakeLedger struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest

	queryStatus int
	queryBody   string

	// assignNumber overrides the requested DocNumber on create when non-empty.
	assignNumber string
	createStatus int
	updateStatus int
	getBody      string
}

func newFakeLedger(t *testing.T) *fakeLedger {
	t.Helper()
	f := &fakeLedger{
		queryStatus:  http.StatusOK,
		queryBody:    `{"QueryResponse":{},"time":"2024-05-01T10:00:00.000-07:00"}`,
		createStatus: http.StatusOK,
		updateStatus: http.StatusOK,
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeLedger) handle(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]interface{}
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query().Get("query"),
		Body:   body,
	})
	f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer test-access-token" {
		http.Error(w, `{"Fault":{"type":"AUTHENTICATION"}}`, http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/v3/company/9130/query":
		w.WriteHeader(f.queryStatus)
		io.WriteString(w, f.queryBody)
	case r.Method == http.MethodGet && r.URL.Path == "/v3/company/9130/invoice/145":
		io.WriteString(w, f.getBody)
	case r.Method == http.MethodPost && r.URL.Path == "/v3/company/9130/invoice":
		if sparse, _ := body["sparse"].(bool); sparse {
			w.WriteHeader(f.updateStatus)
			if f.updateStatus == http.StatusOK {
				writeInvoice(w, "145", "1", body["DocNumber"].(string))
			} else {
				io.WriteString(w, `{"Fault":{"type":"ValidationFault"}}`)
			}
			return
		}
		w.WriteHeader(f.createStatus)
		if f.createStatus != http.StatusOK {
			io.WriteString(w, `{"Fault":{"Error":[{"Message":"Duplicate Document Number Error"}]}}`)
			return
		}
		docNumber, _ := body["DocNumber"].(string)
		if f.assignNumber != "" {
			docNumber = f.assignNumber
		}
		writeInvoice(w, "145", "0", docNumber)
	default:
		http.NotFound(w, r)
	}
}

func writeInvoice(w io.Writer, id, syncToken, docNumber string) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"Invoice": map[string]interface{}{
			"Id":          id,
			"SyncToken":   syncToken,
			"DocNumber":   docNumber,
			"TotalAmt":    500,
			"Balance":     500,
			"CustomerRef": map[string]string{"value": "58", "name": "Acme Corp"},
		},
		"time": "2024-05-01T10:00:00.000-07:00",
	})
}

func (f *fakeLedger) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeLedger) client() *Client {
	return NewClient(f.URL, "65")
}
