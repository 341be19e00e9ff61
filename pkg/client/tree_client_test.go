package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Layr-Labs/eigenx-compression-go/pkg/client"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/cmt"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/compression"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/config"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/testutil"
	"github.com/Layr-Labs/eigenx-compression-go/pkg/types"
)

type fixture struct {
	ctx       context.Context
	program   *compression.Program
	sink      *compression.MemorySink
	tree      common.Address
	authority common.Address
}

func newFixture(t *testing.T, cfg *config.TreeConfig) *fixture {
	t.Helper()
	payer := testutil.RandomAddress(t)
	f := &fixture{
		ctx:       context.Background(),
		sink:      compression.NewMemorySink(),
		tree:      testutil.RandomAddress(t),
		authority: testutil.RandomAddress(t),
	}
	store := testutil.NewFundedStore(t, map[common.Address]uint64{payer: testutil.DefaultBalance})
	f.program = compression.NewProgram(store, testutil.NewTestLogger(t), compression.WithEventSink(f.sink))
	_, err := f.program.CreateTree(f.ctx, payer, f.tree, f.authority, cfg)
	require.NoError(t, err)
	return f
}

func (f *fixture) client(t *testing.T, opts ...client.Option) *client.TreeClient {
	t.Helper()
	opts = append(opts, client.WithLogger(testutil.NewTestLogger(t)))
	c, err := client.NewTreeClient(f.ctx, f.program, f.tree, f.authority, opts...)
	require.NoError(t, err)
	return c
}

func requireInSync(t *testing.T, c *client.TreeClient) {
	t.Helper()
	ok, err := c.InSync(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func testConfig() *config.TreeConfig {
	return &config.TreeConfig{MaxDepth: 6, MaxBufferSize: 8, CanopyDepth: 2}
}

func updatesFor(t *testing.T, indices ...uint32) []client.LeafUpdate {
	t.Helper()
	out := make([]client.LeafUpdate, len(indices))
	for i, idx := range indices {
		out[i] = client.LeafUpdate{Index: idx, Leaf: testutil.RandomLeaf(t)}
	}
	return out
}

func TestTreeClient_AppendMirrorsTree(t *testing.T) {
	f := newFixture(t, testConfig())
	c := f.client(t)

	leaves := testutil.RandomLeaves(t, 12)
	for i, leaf := range leaves {
		r, err := c.Append(f.ctx, leaf)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), r.LeafIndex)
		assert.Equal(t, r.Root, c.Root())
	}
	assert.Equal(t, leaves, c.Leaves())
	requireInSync(t, c)

	for i := range leaves {
		ok, err := c.Verify(f.ctx, uint32(i))
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestTreeClient_Replace(t *testing.T) {
	f := newFixture(t, testConfig())
	c := f.client(t)
	for _, leaf := range testutil.RandomLeaves(t, 4) {
		_, err := c.Append(f.ctx, leaf)
		require.NoError(t, err)
	}

	leaf := testutil.RandomLeaf(t)
	r, err := c.Replace(f.ctx, 2, leaf)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), r.LeafIndex)
	assert.Equal(t, leaf, c.Leaves()[2])
	requireInSync(t, c)

	_, err = c.Replace(f.ctx, 10, leaf)
	require.ErrorIs(t, err, cmt.ErrIndexOutOfBounds)
	requireInSync(t, c)
}

func TestTreeClient_ReplaceBatch(t *testing.T) {
	f := newFixture(t, testConfig())
	c := f.client(t, client.WithConcurrency(16))
	for _, leaf := range testutil.RandomLeaves(t, 64) {
		_, err := c.Append(f.ctx, leaf)
		require.NoError(t, err)
	}

	// Larger than the buffer, so it spans several proof snapshots.
	indices := make([]uint32, 0, 30)
	for i := uint32(0); i < 60; i += 2 {
		indices = append(indices, i)
	}
	updates := updatesFor(t, indices...)

	receipts, err := c.ReplaceBatch(f.ctx, updates)
	require.NoError(t, err)
	require.Len(t, receipts, len(updates))
	for i, r := range receipts {
		require.NotNil(t, r)
		assert.Equal(t, updates[i].Index, r.LeafIndex)
	}

	leaves := c.Leaves()
	for _, u := range updates {
		assert.Equal(t, u.Leaf, leaves[u.Index])
	}
	requireInSync(t, c)
}

func TestTreeClient_ReplaceBatchOrderIndependent(t *testing.T) {
	initial := make([]types.Node, 32)
	for i := range initial {
		initial[i] = testutil.RandomLeaf(t)
	}
	updates := updatesFor(t, 0, 3, 5, 8, 13, 21, 30, 31)

	var roots []types.Node
	for _, concurrency := range []int{1, 8} {
		f := newFixture(t, testConfig())
		c := f.client(t, client.WithConcurrency(concurrency))
		for _, leaf := range initial {
			_, err := c.Append(f.ctx, leaf)
			require.NoError(t, err)
		}
		_, err := c.ReplaceBatch(f.ctx, updates)
		require.NoError(t, err)
		requireInSync(t, c)
		roots = append(roots, c.Root())
	}
	assert.Equal(t, roots[0], roots[1])
}

func TestTreeClient_ReplaceBatchDuplicateIndex(t *testing.T) {
	f := newFixture(t, testConfig())
	c := f.client(t)
	for _, leaf := range testutil.RandomLeaves(t, 4) {
		_, err := c.Append(f.ctx, leaf)
		require.NoError(t, err)
	}
	before := c.Root()

	_, err := c.ReplaceBatch(f.ctx, updatesFor(t, 1, 2, 1))
	require.ErrorIs(t, err, client.ErrDuplicateIndex)
	assert.Equal(t, before, c.Root())
	requireInSync(t, c)
}

func TestTreeClient_ReplaceBatchRateLimited(t *testing.T) {
	f := newFixture(t, testConfig())
	limiter := rate.NewLimiter(rate.Every(time.Millisecond), 1)
	c := f.client(t, client.WithRateLimiter(limiter))
	for _, leaf := range testutil.RandomLeaves(t, 8) {
		_, err := c.Append(f.ctx, leaf)
		require.NoError(t, err)
	}

	_, err := c.ReplaceBatch(f.ctx, updatesFor(t, 0, 1, 2, 3))
	require.NoError(t, err)
	requireInSync(t, c)

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	_, err = c.ReplaceBatch(ctx, updatesFor(t, 4, 5))
	require.ErrorIs(t, err, context.Canceled)
	requireInSync(t, c)
}

func TestTreeClient_ApplyEvent(t *testing.T) {
	f := newFixture(t, testConfig())
	writer := f.client(t)
	for _, leaf := range testutil.RandomLeaves(t, 10) {
		_, err := writer.Append(f.ctx, leaf)
		require.NoError(t, err)
	}
	_, err := writer.ReplaceBatch(f.ctx, updatesFor(t, 1, 4, 7))
	require.NoError(t, err)
	_, err = writer.Replace(f.ctx, 9, types.Node{})
	require.NoError(t, err)

	// An indexer joining late catches up from the event log alone.
	indexer := f.client(t)
	ok, err := indexer.InSync(f.ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	events := f.sink.Events()
	require.Len(t, events, 1+10+3+1)
	require.ErrorIs(t, indexer.ApplyEvent(events[2]), client.ErrSequenceGap)

	for _, ev := range events {
		require.NoError(t, indexer.ApplyEvent(ev))
	}
	requireInSync(t, indexer)
	assert.Equal(t, writer.Leaves(), indexer.Leaves())

	// Replays are ignored.
	require.NoError(t, indexer.ApplyEvent(events[5]))
	assert.Equal(t, writer.Root(), indexer.Root())

	foreign := *events[len(events)-1]
	foreign.Tree = testutil.RandomAddress(t)
	require.ErrorIs(t, indexer.ApplyEvent(&foreign), client.ErrWrongTree)
}

func TestTreeClient_ApplyEventDetectsDivergence(t *testing.T) {
	f := newFixture(t, testConfig())
	writer := f.client(t)
	indexer := f.client(t)

	_, err := writer.Append(f.ctx, testutil.RandomLeaf(t))
	require.NoError(t, err)

	ev := *f.sink.Events()[1]
	path := make([]types.PathNode, len(ev.Path))
	copy(path, ev.Path)
	path[0].Node = testutil.RandomLeaf(t)
	ev.Path = path

	require.ErrorIs(t, indexer.ApplyEvent(&ev), client.ErrOutOfSync)
}

func TestNewTreeClient_MissingTree(t *testing.T) {
	f := newFixture(t, testConfig())
	_, err := client.NewTreeClient(f.ctx, f.program, testutil.RandomAddress(t), f.authority)
	require.ErrorIs(t, err, compression.ErrTreeNotFound)
}
