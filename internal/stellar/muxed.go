package stellar

import (
	"fmt"
	"strconv"

	"github.com/stellar/go/xdr"
)

// MuxedAddress derives the M-address of a user's sub-account on the custodian
// G-address. It is a pure function of its inputs and never stored.
func MuxedAddress(custodian string, userId int64) (string, error) {
	if userId < 0 {
		return "", fmt.Errorf("user id cannot be negative, got %d", userId)
	}
	muxed, err := xdr.MuxedAccountFromAccountId(custodian, uint64(userId))
	if err != nil {
		return "", fmt.Errorf("unable to derive muxed address for user %d: %w", userId, err)
	}
	return muxed.GetAddress()
}

// BaseAddress resolves a G- or M-address to its underlying G-address.
func BaseAddress(address string) (string, error) {
	muxed, err := xdr.AddressToMuxedAccount(address)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", address, err)
	}
	accountId := muxed.ToAccountId()
	return accountId.Address(), nil
}

// ParseMuxedId extracts the sub-account id of a muxed address or a Horizon
// to_muxed_id field.
func ParseMuxedId(value string) (int64, error) {
	if value == "" {
		return 0, fmt.Errorf("muxed id is empty")
	}
	if value[0] == 'M' {
		muxed, err := xdr.AddressToMuxedAccount(value)
		if err != nil {
			return 0, fmt.Errorf("invalid muxed address %q: %w", value, err)
		}
		id, err := muxed.GetId()
		if err != nil {
			return 0, fmt.Errorf("address %q is not muxed: %w", value, err)
		}
		value = strconv.FormatUint(id, 10)
	}

	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid muxed id %q: %w", value, err)
	}
	if id < 0 {
		return 0, fmt.Errorf("invalid muxed id %q", value)
	}
	return id, nil
}
