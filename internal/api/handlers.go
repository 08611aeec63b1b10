package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"stellar-send-receive-go/internal/metrics"
	"stellar-send-receive-go/internal/models"
	"stellar-send-receive-go/internal/payment"
	"stellar-send-receive-go/internal/stellar"
	"stellar-send-receive-go/internal/store"
)

// Router wires the HTTP API
func (s *LedgerService) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	authed := r.NewRoute().Subrouter()
	authed.Use(s.authenticate)
	authed.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	authed.HandleFunc("/transactions", s.handleTransactions).Methods(http.MethodGet)
	authed.HandleFunc("/pay", s.handlePay).Methods(http.MethodPost)
	return r
}

func (s *LedgerService) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey, ok := bearerToken(r)
		if !ok {
			writeError(w, r, ErrAuthentication)
			return
		}
		user, err := s.Authenticate(r.Context(), apiKey)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

func (s *LedgerService) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.HealthCheck(r.Context()); err != nil {
		zap.L().Error("Health check failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *LedgerService) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.CredentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := s.Register(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *LedgerService) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.CredentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *LedgerService) handleInfo(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	info, err := s.GetUserInfo(r.Context(), user.Id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *LedgerService) handleTransactions(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records, err := s.GetTransactionHistory(r.Context(), user.Id, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *LedgerService) handlePay(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	var req models.PayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.Pay(r.Context(), user.Id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Message: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("Failed to write response", zap.Error(err))
	}
}

// writeError maps domain errors to status codes; anything unexpected is
// logged and returned as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *payment.ValidationError
	var chainErr *stellar.ChainSubmissionError

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Message: validationErr.Error()})
	case errors.Is(err, ErrAuthentication):
		w.WriteHeader(http.StatusUnauthorized)
	case errors.Is(err, store.ErrUsernameTaken):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, store.ErrInsufficientBalance):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Message: "Insufficient account balance"})
	case errors.Is(err, payment.ErrDestinationNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Message: "Destination not found"})
	case errors.Is(err, payment.ErrLockUnavailable):
		writeJSON(w, http.StatusGatewayTimeout, models.ErrorResponse{Message: "Unable to acquire payment lock"})
	case errors.As(err, &chainErr):
		zap.L().Error("Payment submission failed",
			zap.String("path", r.URL.Path),
			zap.String("stage", chainErr.Stage),
			zap.String("tx_hash", chainErr.TransactionHash),
			zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
	default:
		zap.L().Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}
