package indexer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"mintExchange/internal/dispatch"
	"mintExchange/internal/handler"
	"mintExchange/internal/market"
	"mintExchange/internal/market/markettest"
	"mintExchange/internal/metrics"
	"mintExchange/internal/model"
	"mintExchange/internal/storage"
)

var (
	seller = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	nft    = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

type fakeSource struct {
	mu          sync.Mutex
	tip         uint64
	tipErr      error
	logs        []types.Log
	filterErrs  []error
	filterCalls int
	onFilter    func()
}

func (s *fakeSource) LatestBlockNumber(context.Context) (uint64, error) {
	return s.tip, s.tipErr
}

func (s *fakeSource) FilterLogs(_ context.Context, address common.Address, from, to uint64) ([]types.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filterCalls++
	if s.onFilter != nil {
		s.onFilter()
	}
	if len(s.filterErrs) > 0 {
		err := s.filterErrs[0]
		s.filterErrs = s.filterErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	var out []types.Log
	for _, log := range s.logs {
		if log.Address == address && log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

func (s *fakeSource) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1_700_000_000 + number, nil
}

type recordingCursor struct {
	*storage.MemoryStore
	advances []uint64
}

func (c *recordingCursor) AdvanceCursor(ctx context.Context, name string, block uint64) error {
	c.advances = append(c.advances, block)
	return c.MemoryStore.AdvanceCursor(ctx, name, block)
}

func chainLog(raw model.RawLog, block uint64, index uint, tx string) types.Log {
	topics := make([]common.Hash, 0, len(raw.Topics))
	for _, topic := range raw.Topics {
		topics = append(topics, common.HexToHash(topic))
	}
	return types.Log{
		Address:     common.HexToAddress(raw.Address),
		Topics:      topics,
		Data:        hexutil.MustDecode(raw.Data),
		BlockNumber: block,
		TxHash:      common.HexToHash(tx),
		Index:       index,
	}
}

type fixture struct {
	store  *storage.MemoryStore
	cursor *recordingCursor
	source *fakeSource
	coord  *Coordinator
}

func newFixture(t *testing.T, cfg Config, source *fakeSource) *fixture {
	t.Helper()

	store := storage.NewMemoryStore()
	h, err := handler.New(handler.Deps{Store: store, PaymentDecimals: 6})
	require.NoError(t, err)
	native, err := market.NewNativeDecoder()
	require.NoError(t, err)
	d, err := dispatch.New(dispatch.Routes{markettest.Marketplace: {native}}, h.Table(), nil, metrics.Nop(), nil)
	require.NoError(t, err)

	if cfg.CursorName == "" {
		cfg.CursorName = "marketplace"
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 10
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}

	cursor := &recordingCursor{MemoryStore: store}
	coord, err := NewCoordinator(cfg, source, cursor, d, metrics.Nop(), nil)
	require.NoError(t, err)
	return &fixture{store: store, cursor: cursor, source: source, coord: coord}
}

func createdLog(block uint64, index uint, tx string) types.Log {
	return chainLog(markettest.ListingCreated(markettest.Marketplace, 42, seller, nft, 7, markettest.USDC(100), ""), block, index, tx)
}

func cancelledLog(block uint64, index uint, tx string) types.Log {
	return chainLog(markettest.ListingCancelled(markettest.Marketplace, 42), block, index, tx)
}

func TestNewCoordinatorValidates(t *testing.T) {
	store := storage.NewMemoryStore()
	_, err := NewCoordinator(Config{ChunkSize: 10, CursorName: "x"}, nil, store, nil, nil, nil)
	require.Error(t, err)
	_, err = NewCoordinator(Config{ChunkSize: 10, CursorName: "x"}, &fakeSource{}, store, nil, nil, nil)
	require.Error(t, err)
}

func TestRunSortsLogsBeforeDispatch(t *testing.T) {
	source := &fakeSource{
		tip: 100,
		logs: []types.Log{
			cancelledLog(100, 1, "0x02"),
			createdLog(100, 0, "0x01"),
		},
	}
	f := newFixture(t, Config{DeploymentBlock: 100}, source)

	result, err := f.coord.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Logs)
	require.Equal(t, 2, result.Applied)
	require.Zero(t, result.Failed)

	listing, ok, err := f.store.GetListing(context.Background(), model.ListingKey{NativeID: "42"})
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, listing.CancelledAt)
	require.Equal(t, time.Unix(1_700_000_100, 0).UTC(), listing.CreatedAt)
}

func TestRunAdvancesCursorPerChunk(t *testing.T) {
	source := &fakeSource{tip: 125, logs: []types.Log{createdLog(112, 0, "0x01")}}
	f := newFixture(t, Config{DeploymentBlock: 100}, source)

	result, err := f.coord.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Result{From: 100, To: 125, Chunks: 3, Logs: 1, Applied: 1, Cursor: 125}, result)
	require.Equal(t, []uint64{109, 119, 125}, f.cursor.advances)

	block, ok, err := f.store.LoadCursor(context.Background(), "marketplace")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(125), block)
}

func TestRunIsNoopWhenCaughtUp(t *testing.T) {
	source := &fakeSource{tip: 125}
	f := newFixture(t, Config{DeploymentBlock: 100}, source)
	require.NoError(t, f.store.AdvanceCursor(context.Background(), "marketplace", 125))

	result, err := f.coord.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(126), result.From)
	require.Zero(t, result.Chunks)
	require.Zero(t, source.filterCalls)
}

func TestRunResumesAfterCursor(t *testing.T) {
	source := &fakeSource{tip: 140}
	f := newFixture(t, Config{DeploymentBlock: 100}, source)
	require.NoError(t, f.store.AdvanceCursor(context.Background(), "marketplace", 129))

	result, err := f.coord.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(130), result.From)
	require.Equal(t, uint64(140), result.To)
	require.Equal(t, []uint64{139, 140}, f.cursor.advances)
}

func TestRunAbortsOnRateLimit(t *testing.T) {
	source := &fakeSource{
		tip:        125,
		filterErrs: []error{nil, rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"}},
	}
	f := newFixture(t, Config{DeploymentBlock: 100, MaxRetries: 3}, source)

	result, err := f.coord.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Aborted)
	require.Equal(t, ReasonRateLimited, result.Reason)
	require.Equal(t, uint64(109), result.Cursor)
	require.Equal(t, 2, source.filterCalls)

	block, _, err := f.store.LoadCursor(context.Background(), "marketplace")
	require.NoError(t, err)
	require.Equal(t, uint64(109), block)
}

func TestRunRetriesTransientErrors(t *testing.T) {
	source := &fakeSource{tip: 105, filterErrs: []error{errors.New("connection reset by peer")}}
	f := newFixture(t, Config{DeploymentBlock: 100, MaxRetries: 2}, source)

	result, err := f.coord.Run(context.Background())
	require.NoError(t, err)
	require.False(t, result.Aborted)
	require.Equal(t, 1, result.Chunks)
	require.Equal(t, 2, source.filterCalls)
}

func TestRunFailsAfterRetriesExhausted(t *testing.T) {
	source := &fakeSource{tip: 105, filterErrs: []error{errors.New("bad gateway"), errors.New("bad gateway")}}
	f := newFixture(t, Config{DeploymentBlock: 100, MaxRetries: 1}, source)

	_, err := f.coord.Run(context.Background())
	require.ErrorContains(t, err, "bad gateway")

	_, ok, err := f.store.LoadCursor(context.Background(), "marketplace")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunAbortsOnTimeout(t *testing.T) {
	source := &fakeSource{tip: 105, filterErrs: []error{context.DeadlineExceeded}}
	f := newFixture(t, Config{DeploymentBlock: 100}, source)

	result, err := f.coord.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Aborted)
	require.Equal(t, ReasonTimeout, result.Reason)
}

func TestRunAbortsOnTimeBudget(t *testing.T) {
	clock := time.Unix(0, 0)
	source := &fakeSource{tip: 139}
	source.onFilter = func() { clock = clock.Add(30 * time.Second) }

	f := newFixture(t, Config{DeploymentBlock: 100, TimeBudget: 50 * time.Second}, source)
	f.coord.now = func() time.Time { return clock }

	result, err := f.coord.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Aborted)
	require.Equal(t, ReasonTimeBudget, result.Reason)
	require.Equal(t, 2, result.Chunks)
	require.Equal(t, uint64(119), result.Cursor)
}

func TestRunCapsRangeAndHonoursConfirmations(t *testing.T) {
	f := newFixture(t, Config{DeploymentBlock: 100, MaxRange: 50, Confirmations: 5, ChunkSize: 100}, &fakeSource{tip: 10_000})
	result, err := f.coord.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(149), result.To)

	f = newFixture(t, Config{DeploymentBlock: 100, Confirmations: 10, ChunkSize: 100}, &fakeSource{tip: 130})
	result, err = f.coord.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(120), result.To)

	f = newFixture(t, Config{DeploymentBlock: 100, Confirmations: 10}, &fakeSource{tip: 5})
	result, err = f.coord.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, result.Chunks)
}

func TestRunRangeLeavesCursorAlone(t *testing.T) {
	source := &fakeSource{logs: []types.Log{createdLog(103, 0, "0x01")}}
	f := newFixture(t, Config{DeploymentBlock: 100}, source)

	result, err := f.coord.RunRange(context.Background(), 100, 125)
	require.NoError(t, err)
	require.Equal(t, 3, result.Chunks)
	require.Equal(t, uint64(125), result.Cursor)
	require.Empty(t, f.cursor.advances)
	require.Len(t, f.store.Listings(), 1)

	_, err = f.coord.RunRange(context.Background(), 10, 9)
	require.Error(t, err)
}

func TestRunReturnsTipErrors(t *testing.T) {
	f := newFixture(t, Config{DeploymentBlock: 100}, &fakeSource{tipErr: errors.New("dial tcp: connection refused")})
	_, err := f.coord.Run(context.Background())
	require.Error(t, err)

	f = newFixture(t, Config{DeploymentBlock: 100}, &fakeSource{tipErr: errors.New("429 Too Many Requests")})
	result, err := f.coord.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Aborted)
	require.Equal(t, ReasonRateLimited, result.Reason)
}
