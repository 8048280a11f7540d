package main

import (
	"bytes"
	"testing"

	"ledger_bridge/pkg/quickbooks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Commands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	assert.ElementsMatch(t, []string{"authorize", "serve-callback", "realms", "create-invoice", "invoice-status", "fields"}, names)
}

func TestCreateInvoiceCmd_RequiresFlags(t *testing.T) {
	cmd := newCreateInvoiceCmd(func() *app { return nil })
	cmd.SetArgs([]string{"--realm", "9130"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()

	assert.ErrorContains(t, err, `required flag(s) "deal" not set`)
}

func TestAllocationOutput(t *testing.T) {
	out := allocationOutput(&quickbooks.Allocation{
		Invoice:         &quickbooks.Invoice{ID: "145", DocNumber: "1"},
		RequestedNumber: "1",
		Reconciled:      true,
		Warning:         &quickbooks.NumberingWarning{LatestDocNumber: "LEGACY-A"},
	})

	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, out))
	assert.JSONEq(t, `{
		"invoiceId": "145",
		"docNumber": "1",
		"requestedNumber": "1",
		"reconciled": true,
		"replayed": false,
		"warning": "latest document number \"LEGACY-A\" is not numeric; numbering restarts at 1"
	}`, buf.String())
}
