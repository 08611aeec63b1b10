package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"stellar-send-receive-go/internal/models"
	"stellar-send-receive-go/internal/payment"
	"stellar-send-receive-go/internal/stellar"
	"stellar-send-receive-go/internal/store"
)

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetUserById(ctx context.Context, userId int64) (*models.User, error) {
	args := m.Called(ctx, userId)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserStore) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	args := m.Called(ctx, username, passwordHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserStore) GetUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserStore) GetCredentials(ctx context.Context, username string) (int64, string, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(int64), args.String(1), args.Error(2)
}

func (m *MockUserStore) StoreApiKey(ctx context.Context, userId int64, keyHash string) error {
	return m.Called(ctx, userId, keyHash).Error(0)
}

func (m *MockUserStore) FindUserByApiKey(ctx context.Context, keyHash string) (*models.User, error) {
	args := m.Called(ctx, keyHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) GetUserBalance(ctx context.Context, userId int64) (int64, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) GetTransactionHistory(ctx context.Context, userId int64, limit, offset int) ([]models.Transaction, error) {
	args := m.Called(ctx, userId, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Transaction), args.Error(1)
}

type MockPayer struct {
	mock.Mock
}

func (m *MockPayer) Pay(ctx context.Context, req payment.PayRequest) (*payment.PayResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.PayResult), args.Error(1)
}

type fakeAddressBook struct{}

func (fakeAddressBook) MuxedAddress(userId int64) (string, error) {
	return fmt.Sprintf("MUSER%d", userId), nil
}

const testApiKey = "3f0f4c4e-2a7e-4d8e-9a53-2a1f6f1c9b10"

type apiFixture struct {
	users  *MockUserStore
	ledger *MockLedger
	payer  *MockPayer
	keys   *KeyHasher
	router http.Handler
	alice  *models.User
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	keys, err := NewKeyHasher("pepper")
	require.NoError(t, err)

	f := &apiFixture{
		users:  new(MockUserStore),
		ledger: new(MockLedger),
		payer:  new(MockPayer),
		keys:   keys,
		alice:  &models.User{Id: 7, Username: "alice"},
	}
	f.router = NewLedgerService(f.users, f.ledger, f.payer, fakeAddressBook{}, keys).Router()
	return f
}

// authorized makes testApiKey resolve to alice
func (f *apiFixture) authorized() {
	f.users.On("FindUserByApiKey", mock.Anything, f.keys.Hash(testApiKey)).Return(f.alice, nil)
}

func (f *apiFixture) do(method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestRegister(t *testing.T) {
	f := newAPIFixture(t)
	f.users.On("CreateUser", mock.Anything, "alice", mock.AnythingOfType("string")).Return(f.alice, nil).Once()
	f.users.On("CreateUser", mock.Anything, "alice", mock.AnythingOfType("string")).Return(nil, fmt.Errorf("%w: alice", store.ErrUsernameTaken)).Once()

	creds := models.CredentialsRequest{Username: "alice", Password: "secret"}
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/register", creds, "").Code)
	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/register", creds, "").Code)

	stored := f.users.Calls[0].Arguments.String(2)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored), []byte("secret")), "password must be stored as bcrypt hash")
}

func TestRegister_Validation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(http.MethodPost, "/register", models.CredentialsRequest{Password: "secret"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "username")

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString("{not json"))
	bad := httptest.NewRecorder()
	f.router.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	f.users.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogin(t *testing.T) {
	f := newAPIFixture(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	f.users.On("GetCredentials", mock.Anything, "alice").Return(int64(7), string(hash), nil)
	f.users.On("GetCredentials", mock.Anything, "mallory").Return(int64(0), "", fmt.Errorf("%w: mallory", store.ErrUserNotFound))
	f.users.On("StoreApiKey", mock.Anything, int64(7), mock.AnythingOfType("string")).Return(nil)

	rec := f.do(http.MethodPost, "/login", models.CredentialsRequest{Username: "alice", Password: "secret"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ApiKey)
	f.users.AssertCalled(t, "StoreApiKey", mock.Anything, int64(7), f.keys.Hash(resp.ApiKey))

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/login", models.CredentialsRequest{Username: "alice", Password: "wrong"}, "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/login", models.CredentialsRequest{Username: "mallory", Password: "secret"}, "").Code)
}

func TestInfo(t *testing.T) {
	f := newAPIFixture(t)
	f.authorized()
	f.users.On("FindUserByApiKey", mock.Anything, f.keys.Hash("unknown")).Return(nil, store.ErrUserNotFound)
	f.ledger.On("GetUserBalance", mock.Anything, int64(7)).Return(int64(15_000_000), nil)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/info", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/info", nil, "unknown").Code)

	rec := f.do(http.MethodGet, "/info", nil, testApiKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var info models.InfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "MUSER7", info.Address)
	assert.Equal(t, "1.5000000", info.Balance)
}

func TestTransactions(t *testing.T) {
	f := newAPIFixture(t)
	f.authorized()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.ledger.On("GetTransactionHistory", mock.Anything, int64(7), 20, 0).Return([]models.Transaction{
		{Id: "tx-2", TransactionType: "payment_reserve", Amount: -10_000_000, ExternalTransactionId: "reserve:r1", Status: "confirmed", CreatedAt: created},
		{Id: "tx-1", TransactionType: "deposit", Amount: 25_000_000, ExternalTransactionId: "op-1", TransactionHash: "abcd", Status: "confirmed", CreatedAt: created},
	}, nil)

	rec := f.do(http.MethodGet, "/transactions", nil, testApiKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var records []models.TransactionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "-1.0000000", records[0].Amount)
	assert.Equal(t, "2.5000000", records[1].Amount)
	assert.Equal(t, "abcd", records[1].TransactionHash)
}

func TestPay_Success(t *testing.T) {
	f := newAPIFixture(t)
	f.authorized()
	f.ledger.On("GetUserBalance", mock.Anything, int64(7)).Return(int64(50_000_000), nil)
	f.payer.On("Pay", mock.Anything, payment.PayRequest{
		UserId:      7,
		Balance:     50_000_000,
		Destination: "GDEST",
		Amount:      "1.5",
	}).Return(&payment.PayResult{ReservationId: "res-1", TransactionHash: "hash-1", Amount: 15_000_000}, nil)

	rec := f.do(http.MethodPost, "/pay", models.PayRequest{Destination: "GDEST", Amount: "1.5"}, testApiKey)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.PayResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "res-1", resp.ReservationId)
	assert.Equal(t, "hash-1", resp.TransactionHash)
	assert.Equal(t, "1.5000000", resp.Amount)
}

func TestPay_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", &payment.ValidationError{Field: "amount", Message: "must be positive"}, http.StatusBadRequest},
		{"insufficient balance", fmt.Errorf("precheck: %w", store.ErrInsufficientBalance), http.StatusConflict},
		{"destination not found", fmt.Errorf("%w: GDEST", payment.ErrDestinationNotFound), http.StatusNotFound},
		{"lock unavailable", payment.ErrLockUnavailable, http.StatusGatewayTimeout},
		{"chain submission", &stellar.ChainSubmissionError{Stage: "submit", Err: errors.New("tx_bad_seq")}, http.StatusInternalServerError},
		{"unexpected", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t)
			f.authorized()
			f.ledger.On("GetUserBalance", mock.Anything, int64(7)).Return(int64(50_000_000), nil)
			f.payer.On("Pay", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := f.do(http.MethodPost, "/pay", models.PayRequest{Destination: "GDEST", Amount: "1"}, testApiKey)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	f.users.On("GetUsers", mock.Anything).Return([]models.User{}, nil).Once()
	f.users.On("GetUsers", mock.Anything).Return(nil, errors.New("database is closed")).Once()

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", nil, "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/health", nil, "").Code)
}

func TestKeyHasher(t *testing.T) {
	_, err := NewKeyHasher("")
	assert.Error(t, err)

	a, _ := NewKeyHasher("one")
	b, _ := NewKeyHasher("two")
	assert.Equal(t, a.Hash("key"), a.Hash("key"))
	assert.NotEqual(t, a.Hash("key"), b.Hash("key"))
	assert.NotEqual(t, "key", a.Hash("key"))
}
