package datastore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestIsTransientSQLiteErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: true},
		{name: "table locked", err: errors.New("database table is locked"), want: true},
		{name: "short read", err: errors.New("disk I/O error (522)"), want: true},
		{name: "wrapped", err: fmt.Errorf("failed to store: %w", errors.New("SQLITE_LOCKED")), want: true},
		{name: "constraint", err: errors.New("UNIQUE constraint failed: datasets.name"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, isTransientSQLiteErr(tc.err), tc.want)
		})
	}
}

func TestRetryOp(t *testing.T) {
	cfg := retryConfig{maxRetries: 2, baseDelay: time.Millisecond, maxDelay: 2 * time.Millisecond}
	busy := errors.New("SQLITE_BUSY")
	fatal := errors.New("no such table")

	tests := []struct {
		name         string
		results      []error
		wantErr      error
		wantAttempts int
	}{
		{name: "success", results: []error{nil}, wantErr: nil, wantAttempts: 1},
		{name: "recovers", results: []error{busy, busy, nil}, wantErr: nil, wantAttempts: 3},
		{name: "gives up", results: []error{busy, busy, busy, busy}, wantErr: busy, wantAttempts: 3},
		{name: "not transient", results: []error{fatal, nil}, wantErr: fatal, wantAttempts: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			attempts := 0
			err := retryOp(context.Background(), cfg, func() error {
				err := tc.results[attempts]
				attempts++
				return err
			})
			assert.Equal(t, err, tc.wantErr)
			assert.Equal(t, attempts, tc.wantAttempts)
		})
	}
}

func TestRetryOpContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := retryConfig{maxRetries: 5, baseDelay: time.Second, maxDelay: time.Second}
	busy := errors.New("SQLITE_BUSY")

	attempts := 0
	err := retryOp(ctx, cfg, func() error {
		attempts++
		return busy
	})
	assert.Equal(t, err, busy)
	assert.Equal(t, attempts, 1)
}

func TestBackoffDelay(t *testing.T) {
	cfg := retryConfig{maxRetries: 5, baseDelay: 10 * time.Millisecond, maxDelay: 50 * time.Millisecond}

	for attempt := range 6 {
		want := min(cfg.baseDelay<<uint(attempt), cfg.maxDelay)
		got := backoffDelay(cfg, attempt)
		if got < want || got >= want+cfg.baseDelay {
			t.Errorf("attempt %d: delay %v outside [%v, %v)", attempt, got, want, want+cfg.baseDelay)
		}
	}
}
