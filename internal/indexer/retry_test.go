package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

func TestWithRetryRecovers(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	for name, failure := range map[string]error{
		"rate limited": rpc.HTTPError{StatusCode: 429},
		"canceled":     context.Canceled,
	} {
		calls := 0
		err := withRetry(context.Background(), 5, time.Millisecond, func(context.Context) error {
			calls++
			return failure
		})
		if err == nil || calls != 1 {
			t.Fatalf("%s: expected one failed call, got %d calls err=%v", name, calls, err)
		}
	}
}

func TestWithRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, 5, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return errors.New("bad gateway")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("expected cancellation after one call, got %d calls err=%v", calls, err)
	}
}
