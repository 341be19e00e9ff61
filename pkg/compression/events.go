package compression

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/cmt"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

// ChangeLogEvent describes one committed tree mutation. Indexers replay
// these to keep an off-chain copy of the tree without reading the account.
type ChangeLogEvent struct {
	TxID           uuid.UUID        `json:"txId"`
	Tree           common.Address   `json:"tree"`
	SequenceNumber uint64           `json:"seq"`
	LeafIndex      uint32           `json:"index"`
	Path           []types.PathNode `json:"path"`
}

// Leaf returns the written leaf value.
func (e *ChangeLogEvent) Leaf() types.Node {
	return e.Path[0].Node
}

// Root returns the root after the change.
func (e *ChangeLogEvent) Root() types.Node {
	return e.Path[len(e.Path)-1].Node
}

func newChangeLogEvent(txID uuid.UUID, tree common.Address, t *cmt.ConcurrentMerkleTree) *ChangeLogEvent {
	cl := t.ActiveChangeLog()
	return &ChangeLogEvent{
		TxID:           txID,
		Tree:           tree,
		SequenceNumber: t.SequenceNumber(),
		LeafIndex:      cl.Index,
		Path:           cl.PathNodes(),
	}
}

// EventSink receives events after their mutation has been committed.
type EventSink interface {
	Publish(ctx context.Context, event *ChangeLogEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, event *ChangeLogEvent)

func (f EventSinkFunc) Publish(ctx context.Context, event *ChangeLogEvent) {
	f(ctx, event)
}

// MemorySink records every published event.
type MemorySink struct {
	mu     sync.Mutex
	events []*ChangeLogEvent
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Publish(_ context.Context, event *ChangeLogEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of the recorded events in publish order.
func (s *MemorySink) Events() []*ChangeLogEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ChangeLogEvent, len(s.events))
	copy(out, s.events)
	return out
}

type noopSink struct{}

func (noopSink) Publish(context.Context, *ChangeLogEvent) {}
