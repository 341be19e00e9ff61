package util

import (
	"bytes"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// AddressLocks hands out one mutex per address. The zero value is ready to
// use.
type AddressLocks struct {
	locks sync.Map // common.Address -> *sync.Mutex
}

// Lock acquires the mutexes for addrs in address order and returns the
// matching unlock. Duplicate addresses are locked once.
func (l *AddressLocks) Lock(addrs ...common.Address) func() {
	sorted := SortAddresses(addrs)
	held := make([]*sync.Mutex, 0, len(sorted))
	for _, a := range sorted {
		m, _ := l.locks.LoadOrStore(a, &sync.Mutex{})
		mu := m.(*sync.Mutex)
		mu.Lock()
		held = append(held, mu)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// SortAddresses returns the distinct addresses of addrs in byte order. The
// input is not modified.
func SortAddresses(addrs []common.Address) []common.Address {
	seen := make(map[common.Address]struct{}, len(addrs))
	out := make([]common.Address, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
