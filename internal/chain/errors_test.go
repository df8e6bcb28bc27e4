package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
)

type codedError struct {
	code int
}

func (e codedError) Error() string  { return fmt.Sprintf("rpc error %d", e.code) }
func (e codedError) ErrorCode() int { return e.code }

func TestIsRateLimited(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "http 429", err: fmt.Errorf("filter logs: %w", rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"}), want: true},
		{name: "http 500", err: rpc.HTTPError{StatusCode: 500, Status: "500 Internal Server Error"}, want: false},
		{name: "limit exceeded code", err: codedError{code: -32005}, want: true},
		{name: "other code", err: codedError{code: -32000}, want: false},
		{name: "message", err: errors.New("Your app has exceeded its compute units per second capacity: rate limit"), want: true},
		{name: "plain", err: errors.New("connection refused"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRateLimited(tc.err); got != tc.want {
				t.Fatalf("IsRateLimited(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(fmt.Errorf("get logs: %w", context.DeadlineExceeded)) {
		t.Fatalf("expected deadline exceeded to be a timeout")
	}
	if IsTimeout(errors.New("boom")) {
		t.Fatalf("unexpected timeout classification")
	}
}
