package util

import (
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestSortAddresses_Invariants(t *testing.T) {
	a := common.HexToAddress("0x1000000000000000000000000000000000000000")
	b := common.HexToAddress("0x0200000000000000000000000000000000000000")
	c := common.HexToAddress("0xABCDEF1234567890ABCDEF1234567890ABCDEF12")

	in := []common.Address{c, a, b, a, c}
	out := SortAddresses(in)

	require.Equal(t, []common.Address{b, a, c}, out)
	// Input untouched
	require.Equal(t, []common.Address{c, a, b, a, c}, in)
	require.Empty(t, SortAddresses(nil))
}

func TestAddressLocks_Exclusive(t *testing.T) {
	var locks AddressLocks
	addr := common.HexToAddress("0x1234567890123456789012345678901234567890")

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(addr)
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
}

func TestAddressLocks_OppositeOrderDoesNotDeadlock(t *testing.T) {
	var locks AddressLocks
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				locks.Lock(a, b)()
			}()
			go func() {
				defer wg.Done()
				locks.Lock(b, a, b)()
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock acquisition deadlocked")
	}
}

func TestDecodeAddressAmount_WrongLength(t *testing.T) {
	_, _, err := DecodeAddressAmount(make([]byte, AddressAmountSize-1))
	require.Error(t, err)
}
