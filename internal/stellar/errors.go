package stellar

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/stellar/go/clients/horizonclient"
)

// ChainSubmissionError reports a payment that could not be built, signed or
// accepted by the network. TransactionHash is set once the transaction was signed.
// OutcomeUnknown is set when the network may still apply the transaction.
type ChainSubmissionError struct {
	Stage           string
	TransactionHash string
	ResultCodes     string
	OutcomeUnknown  bool
	Err             error
}

func (e *ChainSubmissionError) Error() string {
	msg := fmt.Sprintf("chain submission failed at %s", e.Stage)
	if e.TransactionHash != "" {
		msg += fmt.Sprintf(" (tx %s)", e.TransactionHash)
	}
	if e.ResultCodes != "" {
		msg += fmt.Sprintf(" [%s]", e.ResultCodes)
	}
	return msg + ": " + e.Err.Error()
}

func (e *ChainSubmissionError) Unwrap() error {
	return e.Err
}

func submissionError(stage, txHash string, err error) *ChainSubmissionError {
	subErr := &ChainSubmissionError{Stage: stage, TransactionHash: txHash, Err: err}

	var hErr *horizonclient.Error
	if errors.As(err, &hErr) {
		if codes, codesErr := hErr.ResultCodes(); codesErr == nil && codes != nil {
			subErr.ResultCodes = fmt.Sprintf("tx=%s ops=%v", codes.TransactionCode, codes.OperationCodes)
		}
	}
	return subErr
}

// outcomeUnknown reports whether a submit error leaves the transaction's fate
// open: the request timed out, or Horizon gave up waiting for a ledger.
func outcomeUnknown(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var hErr *horizonclient.Error
	if errors.As(err, &hErr) {
		return hErr.Problem.Status == http.StatusGatewayTimeout
	}
	return false
}
