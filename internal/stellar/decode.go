package stellar

import (
	"encoding/json"
	"strconv"

	"github.com/stellar/go/protocols/horizon/operations"
	"go.uber.org/zap"

	"stellar-send-receive-go/internal/models"
)

// DecodeOperation maps a Horizon operation onto the inbound event variant.
// Payments keep the fields needed for filtering and crediting; everything
// else becomes an OtherEvent.
func DecodeOperation(op operations.Operation) models.InboundEvent {
	raw, err := json.Marshal(op)
	if err != nil {
		zap.L().Warn("Unable to encode operation", zap.String("operation_id", op.GetID()), zap.Error(err))
	}

	switch payment := op.(type) {
	case operations.Payment:
		return paymentEvent(payment, raw)
	case *operations.Payment:
		return paymentEvent(*payment, raw)
	}

	other := models.OtherEvent{
		OperationId:     op.GetID(),
		TransactionHash: op.GetTransactionHash(),
		Type:            op.GetType(),
		Raw:             raw,
	}
	if paged, ok := op.(interface{ PagingToken() string }); ok {
		other.PagingToken = paged.PagingToken()
	}
	return other
}

func paymentEvent(p operations.Payment, raw json.RawMessage) models.PaymentEvent {
	event := models.PaymentEvent{
		OperationId:     p.Base.ID,
		PagingToken:     p.Base.PagingToken(),
		TransactionHash: p.Base.TransactionHash,
		Type:            p.Base.Type,
		AssetType:       p.Asset.Type,
		From:            p.From,
		To:              p.To,
		ToMuxed:         p.ToMuxed,
		Amount:          p.Amount,
		CreatedAt:       p.Base.LedgerCloseTime,
		Raw:             raw,
	}
	if p.ToMuxed != "" {
		event.ToMuxedId = strconv.FormatUint(p.ToMuxedID, 10)
	}
	return event
}
