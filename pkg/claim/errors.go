package claim

import "errors"

var (
	ErrAlreadyClaimed               = errors.New("claimer has already claimed")
	ErrProofInvalid                 = errors.New("claim proof is invalid")
	ErrClaimLimitExceeded           = errors.New("claim limit exceeded")
	ErrNotWhitelisted               = errors.New("claimer is not whitelisted")
	ErrClaimAmountExceedsAllocation = errors.New("claim amount exceeds the allocated amount")
	ErrAlreadyWhitelisted           = errors.New("address is already whitelisted")
	ErrUnauthorized                 = errors.New("signer is not the contract authority")
	ErrContractNotFound             = errors.New("claim contract not found")
	ErrContractExists               = errors.New("account already exists")
	ErrWrongMode                    = errors.New("operation not available in this claim mode")
	ErrInvalidParams                = errors.New("invalid claim parameters")
)

var ErrInsufficientFunds = errors.New("insufficient funds")
