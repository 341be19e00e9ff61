package inMemorySigner

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/signer"
)

type InMemorySigner struct {
	logger     *zap.Logger
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

var _ signer.ISigner = (*InMemorySigner)(nil)

// NewInMemorySignerFromHex loads a secp256k1 key from hex, with or without 0x.
func NewInMemorySignerFromHex(privateKeyHex string, logger *zap.Logger) (*InMemorySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("error loading private key: %w", err)
	}
	return NewInMemorySigner(key, logger), nil
}

// NewRandomInMemorySigner generates a fresh key.
func NewRandomInMemorySigner(logger *zap.Logger) (*InMemorySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("error generating private key: %w", err)
	}
	return NewInMemorySigner(key, logger), nil
}

func NewInMemorySigner(key *ecdsa.PrivateKey, logger *zap.Logger) *InMemorySigner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemorySigner{
		logger:     logger,
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

func (s *InMemorySigner) Address() common.Address {
	return s.address
}

// data is the raw message bytes to sign
func (s *InMemorySigner) SignMessage(data []byte) ([]byte, error) {
	hashedData := crypto.Keccak256Hash(data)
	sig, err := crypto.Sign(hashedData[:], s.privateKey)
	if err != nil {
		return nil, err
	}
	return sig, nil
}

func (s *InMemorySigner) CreateAuthenticatedMessage(data []byte) (*signer.SignedMessage, error) {
	hash := crypto.Keccak256Hash(data)

	sigBytes, err := s.SignMessage(data)
	if err != nil {
		return nil, fmt.Errorf("failed to sign authenticated message: %w", err)
	}
	s.logger.Sugar().Debugw("Signed message", "signer", s.address.Hex(), "hash", hash.Hex())

	return &signer.SignedMessage{
		Payload:   data,
		Signature: sigBytes,
		Hash:      hash,
	}, nil
}
