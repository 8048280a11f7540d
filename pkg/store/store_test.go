package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ledger_bridge/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStores(t *testing.T) (*CredentialStore, *RequestStore) {
	t.Helper()
	db, err := InitDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), nil)
	require.NoError(t, err)
	return NewCredentialStore(db), NewRequestStore(db)
}

func TestCredentialStore_GetMissing(t *testing.T) {
	creds, _ := newTestStores(t)

	_, err := creds.Get(context.Background(), "9130")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrCredentialNotFound)
	assert.Contains(t, err.Error(), "9130")
}

func TestCredentialStore_SaveReplacesTokensForRealm(t *testing.T) {
	creds, _ := newTestStores(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, creds.Save(ctx, &AccessCredential{
		RealmID:          "9130",
		AccessToken:      "access-1",
		RefreshToken:     "refresh-1",
		AccessExpiresAt:  now.Add(time.Hour),
		RefreshExpiresAt: now.Add(100 * 24 * time.Hour),
	}))
	require.NoError(t, creds.Save(ctx, &AccessCredential{
		RealmID:          "9130",
		AccessToken:      "access-2",
		RefreshToken:     "refresh-2",
		AccessExpiresAt:  now.Add(2 * time.Hour),
		RefreshExpiresAt: now.Add(101 * 24 * time.Hour),
	}))

	got, err := creds.Get(ctx, "9130")
	require.NoError(t, err)
	assert.Equal(t, "access-2", got.AccessToken)
	assert.Equal(t, "refresh-2", got.RefreshToken)
	assert.True(t, got.AccessExpiresAt.Equal(now.Add(2*time.Hour)))

	all, err := creds.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAccessCredential_AccessExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cred := &AccessCredential{AccessExpiresAt: now}

	assert.True(t, cred.AccessExpired(now), "expiry instant counts as expired")
	assert.True(t, cred.AccessExpired(now.Add(time.Second)))
	assert.False(t, cred.AccessExpired(now.Add(-time.Second)))
}

func TestRequestStore_RecordAndFind(t *testing.T) {
	_, requests := newTestStores(t)
	ctx := context.Background()

	got, err := requests.Find(ctx, "deal-77")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, requests.Record(ctx, &InvoiceRequest{
		Key:             "deal-77",
		RealmID:         "9130",
		InvoiceID:       "145",
		RequestedNumber: "12",
		DocNumber:       "1001",
	}))
	require.NoError(t, requests.UpdateDocNumber(ctx, "deal-77", "12"))

	got, err = requests.Find(ctx, "deal-77")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "145", got.InvoiceID)
	assert.Equal(t, "12", got.DocNumber)

	assert.Error(t, requests.Record(ctx, &InvoiceRequest{Key: "deal-77", RealmID: "9130"}))
}
