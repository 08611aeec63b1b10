package relay

import "stellar-send-receive-go/internal/models"

// Relevant reports whether event is a native payment into one of the
// custodian's muxed sub-accounts, returning the payment when it is.
func Relevant(event models.InboundEvent, accountId string) (models.PaymentEvent, bool) {
	payment, ok := event.(models.PaymentEvent)
	if !ok {
		return models.PaymentEvent{}, false
	}
	if payment.Type != models.OperationTypePayment || payment.AssetType != models.AssetTypeNative {
		return models.PaymentEvent{}, false
	}
	if payment.To != accountId || payment.ToMuxedId == "" {
		return models.PaymentEvent{}, false
	}
	return payment, true
}
