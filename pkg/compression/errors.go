package compression

import "errors"

var (
	// ErrUnauthorized is returned when the signer is not the tree's authority.
	ErrUnauthorized = errors.New("signer is not the tree authority")

	// ErrTreeNotEmpty is returned by CloseEmptyTree while any leaf is non-default.
	ErrTreeNotEmpty = errors.New("tree is not empty")

	// ErrTreeNotFound is returned when no account exists at the tree address.
	ErrTreeNotFound = errors.New("tree account not found")

	// ErrTreeExists is returned when creating a tree over an existing account.
	ErrTreeExists = errors.New("account already exists")

	// ErrNotTreeAccount is returned when the account is owned by another program.
	ErrNotTreeAccount = errors.New("account is not a tree account")

	// ErrInsufficientFunds is returned when the payer cannot cover the reserve.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnknownInstruction is returned by Execute for unsupported kinds.
	ErrUnknownInstruction = errors.New("unknown instruction")
)
