package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// MarshalAccount serializes an Account to JSON bytes.
// Data is carried as base64 by encoding/json.
func MarshalAccount(acct *types.Account) ([]byte, error) {
	if acct == nil {
		return nil, fmt.Errorf("cannot marshal nil Account")
	}

	data, err := json.Marshal(acct)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Account to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalAccount deserializes an Account from JSON bytes.
func UnmarshalAccount(data []byte) (*types.Account, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var acct types.Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to Account: %w", err)
	}

	return &acct, nil
}
