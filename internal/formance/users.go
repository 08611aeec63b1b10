package formance

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"stellar-send-receive-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"go.uber.org/zap"
)

// RegisterUser tags the user's ledger account so balance listings can find
// it before the first deposit arrives.
func (s *Service) RegisterUser(ctx context.Context, user *models.User) error {
	addr := userAccount(user.Id)
	zap.L().Info("Registering user account in Formance", zap.String("address", addr))

	_, err := s.client.Ledger.V2.AddMetadataToAccount(ctx, operations.V2AddMetadataToAccountRequest{
		Ledger:  s.ledger,
		Address: addr,
		RequestBody: map[string]string{
			"entity_type": "end_user",
			"username":    user.Username,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to register user account: %w", err)
	}
	return nil
}

// listUserAccounts returns the ids of all registered user accounts.
func (s *Service) listUserAccounts(ctx context.Context) ([]int64, error) {
	resp, err := s.client.Ledger.V2.ListAccounts(ctx, operations.V2ListAccountsRequest{
		Ledger:   s.ledger,
		PageSize: ptrInt64(100),
		RequestBody: map[string]any{
			"$match": map[string]any{
				"metadata[entity_type]": "end_user",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var ids []int64
	for _, acct := range resp.V2AccountsCursorResponse.Cursor.Data {
		if id, ok := userIdFromAddress(acct.Address); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// userIdFromAddress parses top-level user accounts (users:{id}, not users:{id}:reserved).
func userIdFromAddress(address string) (int64, bool) {
	parts := strings.Split(address, ":")
	if len(parts) != 2 || parts[0] != "users" {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
