package signer

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignature is returned when a message's hash or signature does
// not check out.
var ErrInvalidSignature = errors.New("invalid message signature")

type SignedMessage struct {
	Payload   []byte   `json:"payload"`   // Raw instruction bytes
	Hash      [32]byte `json:"hash"`      // keccak256(payload)
	Signature []byte   `json:"signature"` // 65-byte recoverable ECDSA signature over hash
}

type ISigner interface {
	Address() common.Address
	CreateAuthenticatedMessage(data []byte) (*SignedMessage, error)
	SignMessage(data []byte) ([]byte, error) // Sign raw message bytes, returns signature
}

// RecoverSigner checks that msg.Hash commits to msg.Payload and returns the
// address that produced msg.Signature.
func RecoverSigner(msg *SignedMessage) (common.Address, error) {
	if msg == nil {
		return common.Address{}, fmt.Errorf("%w: nil message", ErrInvalidSignature)
	}
	if crypto.Keccak256Hash(msg.Payload) != common.Hash(msg.Hash) {
		return common.Address{}, fmt.Errorf("%w: hash does not match payload", ErrInvalidSignature)
	}
	if len(msg.Signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature is %d bytes, expected %d",
			ErrInvalidSignature, len(msg.Signature), crypto.SignatureLength)
	}

	pub, err := crypto.SigToPub(msg.Hash[:], msg.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
