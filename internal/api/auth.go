package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"stellar-send-receive-go/internal/models"
)

// ErrAuthentication is returned for missing or unknown credentials
var ErrAuthentication = errors.New("authentication failed")

// KeyHasher hashes API keys with a server-side salt so that stored hashes
// can be looked up directly.
type KeyHasher struct {
	salt []byte
}

func NewKeyHasher(salt string) (*KeyHasher, error) {
	if salt == "" {
		return nil, fmt.Errorf("api key salt cannot be empty")
	}
	return &KeyHasher{salt: []byte(salt)}, nil
}

func (h *KeyHasher) Hash(apiKey string) string {
	mac := hmac.New(sha256.New, h.salt)
	mac.Write([]byte(apiKey))
	return hex.EncodeToString(mac.Sum(nil))
}

func newApiKey() string {
	return uuid.New().String()
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(auth[len("Bearer "):])
	return token, token != ""
}

type userContextKey struct{}

func withUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

func userFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey{}).(*models.User)
	return user
}
