package concurrency_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"

	"telegram-inbox/internal/infra/concurrency"
)

func TestCallWithTimeout(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")

	cases := []struct {
		name     string
		fn       func(ctx context.Context) (int, error)
		want     int
		wantErr  error
		deadline bool
	}{
		{
			name: "fastSuccess",
			fn:   func(context.Context) (int, error) { return 42, nil },
			want: 42,
		},
		{
			name:    "fastFailurePassesThrough",
			fn:      func(context.Context) (int, error) { return 0, errBoom },
			wantErr: errBoom,
		},
		{
			name: "hangingCallIgnoringContext",
			fn: func(context.Context) (int, error) {
				time.Sleep(time.Second)
				return 1, nil
			},
			deadline: true,
		},
		{
			name: "callWrapsDeadlineIntoOwnError",
			fn: func(ctx context.Context) (int, error) {
				<-ctx.Done()
				return 0, errBoom
			},
			deadline: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := concurrency.CallWithTimeout(context.Background(), 50*time.Millisecond, "test", tc.fn)
			switch {
			case tc.deadline:
				if !errors.Is(err, context.DeadlineExceeded) {
					t.Fatalf("err = %v, want deadline exceeded", err)
				}
			case tc.wantErr != nil:
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected err: %v", err)
				}
				if got != tc.want {
					t.Fatalf("got %d, want %d", got, tc.want)
				}
			}
		})
	}
}

func TestCallWithTimeout_ParentCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := concurrency.DoWithTimeout(ctx, time.Second, "test", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
