package relay

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"stellar-send-receive-go/internal/models"
)

const lastMessagesCap = 5

// Status holds the relay's counters. Only the relay goroutine writes; HTTP
// handlers read through Snapshot.
type Status struct {
	mu    sync.RWMutex
	state models.RelayStatus
}

func NewStatus(accountId string) *Status {
	return &Status{state: models.RelayStatus{
		AccountId:    accountId,
		LastMessages: []json.RawMessage{},
	}}
}

func (s *Status) messageReceived(at time.Time, records int, raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.MessageCount++
	s.state.RecordCount += int64(records)
	s.state.LastMessageReceivedAt = &at

	// newest first
	s.state.LastMessages = append([]json.RawMessage{raw}, s.state.LastMessages...)
	if len(s.state.LastMessages) > lastMessagesCap {
		s.state.LastMessages = s.state.LastMessages[:lastMessagesCap]
	}
}

func (s *Status) messageRelayed(at time.Time, pagingToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.RelayCount++
	s.state.LastMessageRelayedAt = &at
	s.state.LastPagingToken = pagingToken
}

func (s *Status) errorOccurred(at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.ErrorCount++
	s.state.LastErrorAt = &at
	s.state.LastError = err.Error()
}

// Snapshot returns a copy that is safe to use after the relay moves on
func (s *Status) Snapshot() models.RelayStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state
	snapshot.LastMessages = make([]json.RawMessage, len(s.state.LastMessages))
	copy(snapshot.LastMessages, s.state.LastMessages)
	snapshot.LastErrorAt = copyTime(s.state.LastErrorAt)
	snapshot.LastMessageReceivedAt = copyTime(s.state.LastMessageReceivedAt)
	snapshot.LastMessageRelayedAt = copyTime(s.state.LastMessageRelayedAt)
	return snapshot
}

// ServeHTTP writes the snapshot as JSON
func (s *Status) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Snapshot()); err != nil {
		zap.L().Error("Failed to encode relay status", zap.Error(err))
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
