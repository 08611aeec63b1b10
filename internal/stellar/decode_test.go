package stellar

import (
	"encoding/json"
	"testing"

	"github.com/stellar/go/protocols/horizon/base"
	"github.com/stellar/go/protocols/horizon/operations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stellar-send-receive-go/internal/models"
)

func testPayment(id, to, toMuxed string, toMuxedId uint64) operations.Payment {
	return operations.Payment{
		Base: operations.Base{
			ID:              id,
			PT:              id,
			Type:            models.OperationTypePayment,
			TransactionHash: "hash-" + id,
		},
		Asset:     base.Asset{Type: models.AssetTypeNative},
		From:      "GSENDER",
		To:        to,
		ToMuxed:   toMuxed,
		ToMuxedID: toMuxedId,
		Amount:    "12.5000000",
	}
}

func TestDecodeOperation_Payment(t *testing.T) {
	event := DecodeOperation(testPayment("100", "GCUSTODIAN", "MCUSTODIAN", 42))

	payment, ok := event.(models.PaymentEvent)
	require.True(t, ok, "expected a PaymentEvent, got %T", event)
	assert.Equal(t, "100", payment.OperationId)
	assert.Equal(t, "100", payment.Cursor())
	assert.Equal(t, "hash-100", payment.TransactionHash)
	assert.Equal(t, models.OperationTypePayment, payment.Type)
	assert.Equal(t, models.AssetTypeNative, payment.AssetType)
	assert.Equal(t, "GCUSTODIAN", payment.To)
	assert.Equal(t, "42", payment.ToMuxedId)
	assert.Equal(t, "12.5000000", payment.Amount)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payment.RawJSON(), &raw))
	assert.Equal(t, "100", raw["id"])
}

func TestDecodeOperation_UnmuxedPaymentHasNoSubAccount(t *testing.T) {
	event := DecodeOperation(testPayment("101", "GCUSTODIAN", "", 0))

	payment, ok := event.(models.PaymentEvent)
	require.True(t, ok)
	assert.Empty(t, payment.ToMuxedId)
}

func TestDecodeOperation_Other(t *testing.T) {
	op := operations.CreateAccount{
		Base: operations.Base{
			ID:              "200",
			PT:              "200",
			Type:            "create_account",
			TransactionHash: "hash-200",
		},
		StartingBalance: "10.0000000",
	}

	event := DecodeOperation(op)

	other, ok := event.(models.OtherEvent)
	require.True(t, ok, "expected an OtherEvent, got %T", event)
	assert.Equal(t, "200", other.OperationId)
	assert.Equal(t, "200", other.Cursor())
	assert.Equal(t, "create_account", other.Type)
	assert.NotEmpty(t, other.RawJSON())
}
