package stellar

import (
	"context"
	"fmt"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/protocols/horizon/operations"
	"github.com/stellar/go/txnbuild"
	"go.uber.org/zap"

	"stellar-send-receive-go/internal/models"
)

// DefaultPaymentTimeout bounds the validity window of every submitted payment
const DefaultPaymentTimeout = 30 * time.Second

// HorizonClient is the subset of *horizonclient.Client the gateway uses
type HorizonClient interface {
	AccountDetail(request horizonclient.AccountRequest) (hProtocol.Account, error)
	FeeStats() (hProtocol.FeeStats, error)
	SubmitTransaction(transaction *txnbuild.Transaction) (hProtocol.Transaction, error)
	TransactionDetail(txHash string) (hProtocol.Transaction, error)
	StreamPayments(ctx context.Context, request horizonclient.OperationRequest, handler horizonclient.OperationHandler) error
}

var _ HorizonClient = (*horizonclient.Client)(nil)

// Receipt describes a payment accepted by the network
type Receipt struct {
	TransactionHash string
	Ledger          int32
}

// PreparedPayment is a signed payment that has not been submitted yet
type PreparedPayment struct {
	Transaction *txnbuild.Transaction
	Hash        string
	ValidUntil  time.Time
	Sender      string
	Destination string
	Amount      string
}

// TxStatus is the chain's view of a previously submitted transaction
type TxStatus struct {
	Found      bool
	Successful bool
	Ledger     int32
}

type Gateway struct {
	client         HorizonClient
	custodian      *keypair.Full
	accountId      string
	passphrase     string
	paymentTimeout time.Duration
	now            func() time.Time
}

// NewGateway builds a gateway for the custodian account. Without a custodian
// secret the gateway can read and stream but not sign.
func NewGateway(client HorizonClient, cfg models.StellarConfig) (*Gateway, error) {
	if cfg.NetworkPassphrase == "" {
		return nil, fmt.Errorf("network passphrase cannot be empty")
	}

	g := &Gateway{
		client:         client,
		accountId:      cfg.AccountId,
		passphrase:     cfg.NetworkPassphrase,
		paymentTimeout: cfg.PaymentTimeout,
		now:            time.Now,
	}
	if g.paymentTimeout <= 0 {
		g.paymentTimeout = DefaultPaymentTimeout
	}

	if cfg.CustodianSecret != "" {
		kp, err := keypair.ParseFull(cfg.CustodianSecret)
		if err != nil {
			return nil, fmt.Errorf("invalid custodian secret: %w", err)
		}
		if g.accountId != "" && g.accountId != kp.Address() {
			return nil, fmt.Errorf("custodian secret does not match account id %s", g.accountId)
		}
		g.custodian = kp
		g.accountId = kp.Address()
	}

	if g.accountId == "" {
		return nil, fmt.Errorf("either a custodian secret or an account id is required")
	}
	return g, nil
}

func (g *Gateway) CustodianAddress() string {
	return g.accountId
}

// MuxedAddress returns the user's sub-account address on the custodian account
func (g *Gateway) MuxedAddress(userId int64) (string, error) {
	return MuxedAddress(g.accountId, userId)
}

// AccountExists reports whether the base account of address exists on chain.
// Any parse or lookup failure counts as absent.
func (g *Gateway) AccountExists(ctx context.Context, address string) bool {
	if ctx.Err() != nil {
		return false
	}
	base, err := BaseAddress(address)
	if err != nil {
		zap.L().Debug("Destination address does not parse", zap.String("address", address), zap.Error(err))
		return false
	}
	if _, err := g.client.AccountDetail(horizonclient.AccountRequest{AccountID: base}); err != nil {
		zap.L().Debug("Destination account lookup failed", zap.String("account_id", base), zap.Error(err))
		return false
	}
	return true
}

// PreparePayment builds and signs a native payment from the user's
// sub-account without submitting it.
func (g *Gateway) PreparePayment(ctx context.Context, userId int64, destination, amount string) (*PreparedPayment, error) {
	if g.custodian == nil {
		return nil, submissionError("build", "", fmt.Errorf("gateway has no custodian secret"))
	}
	if err := ctx.Err(); err != nil {
		return nil, submissionError("build", "", err)
	}

	sender, err := g.MuxedAddress(userId)
	if err != nil {
		return nil, submissionError("build", "", err)
	}

	account, err := g.client.AccountDetail(horizonclient.AccountRequest{AccountID: g.accountId})
	if err != nil {
		return nil, submissionError("load_account", "", err)
	}
	sequence, err := account.GetSequenceNumber()
	if err != nil {
		return nil, submissionError("load_account", "", err)
	}

	stats, err := g.client.FeeStats()
	if err != nil {
		return nil, submissionError("fetch_fee", "", err)
	}
	baseFee := stats.LastLedgerBaseFee
	if baseFee < txnbuild.MinBaseFee {
		baseFee = txnbuild.MinBaseFee
	}

	validUntil := g.now().Add(g.paymentTimeout).Truncate(time.Second)
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &txnbuild.SimpleAccount{AccountID: sender, Sequence: sequence},
		IncrementSequenceNum: true,
		BaseFee:              baseFee,
		Operations: []txnbuild.Operation{
			&txnbuild.Payment{
				Destination:   destination,
				Amount:        amount,
				Asset:         txnbuild.NativeAsset{},
				SourceAccount: sender,
			},
		},
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimebounds(0, validUntil.Unix()),
		},
	})
	if err != nil {
		return nil, submissionError("build", "", err)
	}

	tx, err = tx.Sign(g.passphrase, g.custodian)
	if err != nil {
		return nil, submissionError("sign", "", err)
	}

	hash, err := tx.HashHex(g.passphrase)
	if err != nil {
		return nil, submissionError("sign", "", err)
	}

	return &PreparedPayment{
		Transaction: tx,
		Hash:        hash,
		ValidUntil:  validUntil,
		Sender:      sender,
		Destination: destination,
		Amount:      amount,
	}, nil
}

// Submit sends a prepared payment to the network
func (g *Gateway) Submit(ctx context.Context, payment *PreparedPayment) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, submissionError("submit", payment.Hash, err)
	}

	zap.L().Info("Submitting payment",
		zap.String("tx_hash", payment.Hash),
		zap.String("sender", payment.Sender),
		zap.String("destination", payment.Destination),
		zap.String("amount", payment.Amount))

	// SubmitTransaction refuses destinations that require a memo (SEP-29)
	resp, err := g.client.SubmitTransaction(payment.Transaction)
	if err != nil {
		subErr := submissionError("submit", payment.Hash, err)
		subErr.OutcomeUnknown = outcomeUnknown(err)
		return nil, subErr
	}
	if !resp.Successful {
		return nil, submissionError("submit", payment.Hash, fmt.Errorf("transaction %s was not successful", resp.Hash))
	}

	return &Receipt{TransactionHash: resp.Hash, Ledger: resp.Ledger}, nil
}

// SubmitNativePayment sends amount of the native asset from the user's
// sub-account to destination. Every failure is a *ChainSubmissionError.
func (g *Gateway) SubmitNativePayment(ctx context.Context, userId int64, destination, amount string) (*Receipt, error) {
	payment, err := g.PreparePayment(ctx, userId, destination, amount)
	if err != nil {
		return nil, err
	}
	return g.Submit(ctx, payment)
}

// TransactionStatus looks a transaction up by hash
func (g *Gateway) TransactionStatus(ctx context.Context, hash string) (TxStatus, error) {
	if err := ctx.Err(); err != nil {
		return TxStatus{}, err
	}
	tx, err := g.client.TransactionDetail(hash)
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return TxStatus{Found: false}, nil
		}
		return TxStatus{}, fmt.Errorf("unable to look up transaction %s: %w", hash, err)
	}
	return TxStatus{Found: true, Successful: tx.Successful, Ledger: tx.Ledger}, nil
}

// Stream follows payment operations touching the custodian account starting
// after cursor ("now" for the live tip). It blocks until ctx is cancelled or
// the stream fails.
func (g *Gateway) Stream(ctx context.Context, cursor string, handler func(models.StreamMessage)) error {
	request := horizonclient.OperationRequest{
		ForAccount: g.accountId,
		Cursor:     cursor,
	}
	return g.client.StreamPayments(ctx, request, func(op operations.Operation) {
		handler(models.StreamMessage{
			Records:    []models.InboundEvent{DecodeOperation(op)},
			ReceivedAt: g.now(),
		})
	})
}
