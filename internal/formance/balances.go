package formance

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"stellar-send-receive-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// GetUserBalance returns the available balance in stroops.
// Queries the single users:{userId} account directly.
func (s *Service) GetUserBalance(ctx context.Context, userId int64) (int64, error) {
	zap.L().Debug("Getting user balance from Formance", zap.Int64("user_id", userId))

	vols, err := s.getAccountVolumes(ctx, userAccount(userId))
	if err != nil {
		return 0, err
	}
	return stroops(volumeBalance(vols, nativeAsset)), nil
}

// GetAllBalances returns available and reserved balances of every registered user.
func (s *Service) GetAllBalances(ctx context.Context) ([]models.AccountBalance, error) {
	users, err := s.listUserAccounts(ctx)
	if err != nil {
		return nil, err
	}

	var balances []models.AccountBalance
	for _, userId := range users {
		available, err := s.getAccountVolumes(ctx, userAccount(userId))
		if err != nil {
			return nil, err
		}
		reserved, err := s.getAccountVolumes(ctx, userAccount(userId)+":reserved")
		if err != nil {
			return nil, err
		}
		balances = append(balances, models.AccountBalance{
			UserId:    userId,
			Balance:   stroops(volumeBalance(available, nativeAsset)),
			Reserved:  stroops(volumeBalance(reserved, nativeAsset)),
			UpdatedAt: time.Now().UTC(),
		})
	}
	return balances, nil
}

// ---------- helpers ----------

// getAccountVolumes fetches volumes for a single account via GetAccount (clean GET).
// An account that never received a posting has no volumes.
func (s *Service) getAccountVolumes(ctx context.Context, address string) (map[string]shared.V2Volume, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: address,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account volumes for %s: %w", address, err)
	}
	return resp.V2AccountResponse.Data.Volumes, nil
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

func stroops(raw *big.Int) int64 {
	if raw == nil {
		return 0
	}
	return raw.Int64()
}
