package quickbooks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ledger_bridge/pkg/apperr"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindInvoicesByDocNumber(t *testing.T) {
	ledger := newFakeLedger(t)
	ledger.queryBody = `{"QueryResponse":{"Invoice":[
		{"Id":"145","SyncToken":"2","DocNumber":"O'Neil-7","TotalAmt":500.00,"Balance":200.00,"DueDate":"2024-06-01","CustomerRef":{"value":"58","name":"Acme Corp"}}
	],"startPosition":1,"maxResults":1}}`

	invoices, err := ledger.client().FindInvoicesByDocNumber(context.Background(), "9130", "test-access-token", "O'Neil-7")

	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.True(t, invoices[0].Balance.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, "Acme Corp", invoices[0].CustomerRef.Name)

	reqs := ledger.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, `SELECT * FROM Invoice WHERE DocNumber = 'O\'Neil-7'`, reqs[0].Query)
}

func TestClient_SendsMinorVersionAndAcceptHeader(t *testing.T) {
	var gotAccept, gotMinor string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotMinor = r.URL.Query().Get("minorversion")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"QueryResponse":{}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL+"/", "65").Query(context.Background(), "9130", "tok", "SELECT * FROM Invoice")

	require.NoError(t, err)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "65", gotMinor)
}

func TestClient_NonSuccessIsUpstreamError(t *testing.T) {
	ledger := newFakeLedger(t)

	_, err := ledger.client().Query(context.Background(), "9130", "expired-token", "SELECT * FROM Invoice")

	var upstream *apperr.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusUnauthorized, upstream.Status)
	assert.Contains(t, upstream.Body, "AUTHENTICATION")
}

func TestClient_TransportFailureIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "").GetInvoice(context.Background(), "9130", "tok", "145")

	var upstream *apperr.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Zero(t, upstream.Status)
	assert.Equal(t, "read invoice 145", upstream.Op)
}

func TestLatestNumberedInvoice_Empty(t *testing.T) {
	ledger := newFakeLedger(t)
	ledger.queryBody = `{"QueryResponse":{"Invoice":[{"Id":"1","SyncToken":"0","DocNumber":""}]}}`

	latest, err := ledger.client().LatestNumberedInvoice(context.Background(), "9130", "test-access-token")

	require.NoError(t, err)
	assert.Nil(t, latest)
	assert.Contains(t, ledger.recorded()[0].Query, "ORDERBY MetaData.CreateTime DESC")
}

func TestLatestNumberedInvoice_NumericCastOrdering(t *testing.T) {
	ledger := newFakeLedger(t)
	ledger.queryBody = `{"QueryResponse":{"Invoice":[
		{"Id":"4","DocNumber":"9"},
		{"Id":"3","DocNumber":"LEGACY"},
		{"Id":"2","DocNumber":"10"},
		{"Id":"1","DocNumber":"2"}
	]}}`

	latest, err := ledger.client().LatestNumberedInvoice(context.Background(), "9130", "test-access-token")

	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "10", latest.DocNumber, "10 outranks 9 numerically")
}

func TestClient_MinRequestInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"QueryResponse":{}}`))
	}))
	defer srv.Close()
	client := NewClient(srv.URL, "", WithMinRequestInterval(40*time.Millisecond))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.Query(context.Background(), "9130", "tok", "SELECT * FROM Invoice")
		require.NoError(t, err)
	}

	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestFindCustomerByName(t *testing.T) {
	ledger := newFakeLedger(t)
	ledger.queryBody = `{"QueryResponse":{"Customer":[{"Id":"58","DisplayName":"Acme Corp","Active":true}]}}`

	customer, err := ledger.client().FindCustomerByName(context.Background(), "9130", "test-access-token", "Acme Corp")

	require.NoError(t, err)
	assert.Equal(t, "58", customer.ID)
	assert.Equal(t, `SELECT * FROM Customer WHERE DisplayName = 'Acme Corp'`, ledger.recorded()[0].Query)
}

func TestFindCustomerByName_NoMatch(t *testing.T) {
	ledger := newFakeLedger(t)

	_, err := ledger.client().FindCustomerByName(context.Background(), "9130", "test-access-token", "Nobody Ltd")

	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLatestNumberedInvoice_FollowsPages(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("query")
		queries = append(queries, q)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(q, "STARTPOSITION 1 "):
			w.Write([]byte(`{"QueryResponse":{"Invoice":[{"Id":"9","DocNumber":"12"},{"Id":"8","DocNumber":""}]}}`))
		case strings.Contains(q, "STARTPOSITION 3 "):
			w.Write([]byte(`{"QueryResponse":{"Invoice":[{"Id":"7","DocNumber":"LEGACY"},{"Id":"6","DocNumber":"950"}]}}`))
		default:
			w.Write([]byte(`{"QueryResponse":{"Invoice":[{"Id":"5","DocNumber":"40"}]}}`))
		}
	}))
	defer srv.Close()

	latest, err := NewClient(srv.URL, "", WithQueryPageSize(2)).LatestNumberedInvoice(context.Background(), "9130", "tok")

	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "950", latest.DocNumber, "older pages are scanned too")
	require.Len(t, queries, 3)
	assert.Contains(t, queries[2], "STARTPOSITION 5 MAXRESULTS 2")
}

func TestLatestNumberedInvoice_TieKeepsNewest(t *testing.T) {
	ledger := newFakeLedger(t)
	ledger.queryBody = `{"QueryResponse":{"Invoice":[{"Id":"2","DocNumber":"007"},{"Id":"1","DocNumber":"7"}]}}`

	latest, err := ledger.client().LatestNumberedInvoice(context.Background(), "9130", "test-access-token")

	require.NoError(t, err)
	assert.Equal(t, "2", latest.ID)
}
