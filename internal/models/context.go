package models

import (
	"context"
)

type paymentContextKey struct{}

// PaymentContext carries supplementary payment data through context
// so ledger backends can record it without changing the ledger contract.
type PaymentContext struct {
	Destination string // chain destination (G... or M...)
	AmountHuman string // 7-decimal string as submitted to the chain
}

// WithPaymentContext attaches payment data to a context.
func WithPaymentContext(ctx context.Context, pc *PaymentContext) context.Context {
	return context.WithValue(ctx, paymentContextKey{}, pc)
}

// GetPaymentContext retrieves payment data from context, or nil if absent.
func GetPaymentContext(ctx context.Context) *PaymentContext {
	pc, _ := ctx.Value(paymentContextKey{}).(*PaymentContext)
	return pc
}
