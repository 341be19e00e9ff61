package config

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for cmtctl configuration
const (
	EnvCMTStoreType     = "CMT_STORE_TYPE"
	EnvCMTDataPath      = "CMT_DATA_PATH"
	EnvCMTRedisAddress  = "CMT_REDIS_ADDRESS"
	EnvCMTRedisPassword = "CMT_REDIS_PASSWORD"
	EnvCMTRedisDB       = "CMT_REDIS_DB"
	EnvCMTRedisPrefix   = "CMT_REDIS_KEY_PREFIX"
	EnvCMTPrivateKey    = "CMT_PRIVATE_KEY"
	EnvCMTVerbose       = "CMT_VERBOSE"
)

// MaxTreeDepth is the deepest concurrent tree that can be allocated.
const MaxTreeDepth = 30

// MaxBufferSize caps the change log ring buffer.
const MaxBufferSize = 2048

// MaxCanopyDepth caps the number of cached upper levels.
const MaxCanopyDepth = 17

type StoreType string

func (s StoreType) String() string {
	return string(s)
}

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeBadger StoreType = "badger"
	StoreTypeRedis  StoreType = "redis"
)

// TreeConfig holds the immutable shape of a concurrent merkle tree.
type TreeConfig struct {
	MaxDepth      uint32 `json:"maxDepth" yaml:"maxDepth"`
	MaxBufferSize uint32 `json:"maxBufferSize" yaml:"maxBufferSize"`
	CanopyDepth   uint32 `json:"canopyDepth" yaml:"canopyDepth"`
}

// Validate checks depth, buffer size and canopy depth together.
func (tc *TreeConfig) Validate() error {
	var allErrors field.ErrorList
	if tc.MaxDepth == 0 || tc.MaxDepth > MaxTreeDepth {
		allErrors = append(allErrors, field.Invalid(field.NewPath("maxDepth"), tc.MaxDepth,
			fmt.Sprintf("must be between 1 and %d", MaxTreeDepth)))
	}
	if tc.MaxBufferSize == 0 || tc.MaxBufferSize > MaxBufferSize {
		allErrors = append(allErrors, field.Invalid(field.NewPath("maxBufferSize"), tc.MaxBufferSize,
			fmt.Sprintf("must be between 1 and %d", MaxBufferSize)))
	} else if bits.OnesCount32(tc.MaxBufferSize) != 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("maxBufferSize"), tc.MaxBufferSize,
			"must be a power of two"))
	}
	if tc.CanopyDepth > MaxCanopyDepth {
		allErrors = append(allErrors, field.Invalid(field.NewPath("canopyDepth"), tc.CanopyDepth,
			fmt.Sprintf("must not exceed %d", MaxCanopyDepth)))
	} else if tc.CanopyDepth > tc.MaxDepth {
		allErrors = append(allErrors, field.Invalid(field.NewPath("canopyDepth"), tc.CanopyDepth,
			"must not exceed maxDepth"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// MinProofLength is the number of proof nodes a caller must supply.
func (tc *TreeConfig) MinProofLength() uint32 {
	return tc.MaxDepth - tc.CanopyDepth
}

// Account layout sizes (bytes) used to price tree accounts
const (
	TreeHeaderSize      = 2 + 54 // account type + version, then authority/creation slot/padding
	treeCountersSize    = 8 + 8 + 8
	changeLogFixedSize  = 32 + 4 + 4 // root, index, padding
	rightMostFixedSize  = 32 + 4 + 4 // leaf, index, padding
	accountStorageBytes = 128
)

// TreeAccountSize returns the number of bytes a tree account of this shape
// occupies in the reference on-ledger layout. Rent is charged on this size.
func TreeAccountSize(tc *TreeConfig) uint64 {
	depth := uint64(tc.MaxDepth)
	changeLog := changeLogFixedSize + 32*depth
	rightMost := rightMostFixedSize + 32*depth
	treeSize := treeCountersSize + changeLog*uint64(tc.MaxBufferSize) + rightMost

	var canopySize uint64
	if tc.CanopyDepth > 0 {
		canopySize = ((uint64(1) << (tc.CanopyDepth + 1)) - 2) * 32
	}
	return TreeHeaderSize + treeSize + canopySize
}

// RentConfig prices account storage.
type RentConfig struct {
	LamportsPerByteYear uint64 `json:"lamportsPerByteYear"`
	ExemptionThreshold  uint64 `json:"exemptionThreshold"`
}

// DefaultRentConfig mirrors the common ledger default of 3480 per byte-year, two years.
func DefaultRentConfig() *RentConfig {
	return &RentConfig{
		LamportsPerByteYear: 3480,
		ExemptionThreshold:  2,
	}
}

// MinimumBalance returns the balance an account of dataLen bytes must hold.
func (rc *RentConfig) MinimumBalance(dataLen uint64) uint64 {
	return (accountStorageBytes + dataLen) * rc.LamportsPerByteYear * rc.ExemptionThreshold
}

// StoreConfig selects and configures the account store backend.
type StoreConfig struct {
	Type          StoreType `json:"type"`
	DataPath      string    `json:"dataPath"`
	RedisAddress  string    `json:"redisAddress"`
	RedisPassword string    `json:"redisPassword"`
	RedisDB       int       `json:"redisDb"`
	RedisPrefix   string    `json:"redisPrefix"`
}

// Validate validates the store configuration
func (sc *StoreConfig) Validate() error {
	var allErrors field.ErrorList
	switch sc.Type {
	case StoreTypeMemory:
	case StoreTypeBadger:
		if sc.DataPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("dataPath"), "dataPath is required for badger"))
		}
	case StoreTypeRedis:
		if sc.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redisAddress"), "redisAddress is required for redis"))
		}
		if sc.RedisDB < 0 || sc.RedisDB > 15 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("redisDb"), sc.RedisDB, "must be between 0 and 15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("type"), sc.Type,
			[]string{StoreTypeMemory.String(), StoreTypeBadger.String(), StoreTypeRedis.String()}))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// ParseAddress validates and parses a hex account address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address format: %s", s)
	}
	return common.HexToAddress(s), nil
}
