package util

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AddressAmountSize is the length of an encoded (address, amount) pair.
const AddressAmountSize = common.AddressLength + 8

// EncodeAddressAmount packs addr followed by amount as little-endian uint64.
func EncodeAddressAmount(addr common.Address, amount uint64) []byte {
	out := make([]byte, AddressAmountSize)
	copy(out, addr.Bytes())
	binary.LittleEndian.PutUint64(out[common.AddressLength:], amount)
	return out
}

func DecodeAddressAmount(data []byte) (common.Address, uint64, error) {
	if len(data) != AddressAmountSize {
		return common.Address{}, 0, fmt.Errorf("expected %d bytes, got %d", AddressAmountSize, len(data))
	}
	addr := common.BytesToAddress(data[:common.AddressLength])
	return addr, binary.LittleEndian.Uint64(data[common.AddressLength:]), nil
}
