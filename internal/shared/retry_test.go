package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func fastPolicy(attempts int) RetryPolicy {
	p := DefaultRetryPolicy()
	p.Attempts = attempts
	p.BaseDelay = time.Millisecond
	return p
}

func TestRetryRecoversFromBusy(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), "save", fastPolicy(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	permanent := errors.New("constraint failed")
	calls := 0
	err := Retry(context.Background(), "save", fastPolicy(5), func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want wrapped permanent error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryGivesUp(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), "save", fastPolicy(2), func() error {
		calls++
		return errors.New("SQLITE_BUSY")
	})
	if err == nil || calls != 2 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := fastPolicy(5)
	policy.BaseDelay = time.Hour
	err := Retry(ctx, "save", policy, func() error { return errors.New("SQLITE_BUSY") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestIsSQLiteConflictError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("SQLITE_BUSY"), true},
		{errors.New("database is locked"), true},
		{errors.New("no such table"), false},
	}
	for _, tt := range tests {
		if got := IsSQLiteConflictError(tt.err); got != tt.want {
			t.Errorf("IsSQLiteConflictError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIsMySQLConflictError(t *testing.T) {
	t.Parallel()

	if !IsConflictError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"}) {
		t.Error("deadlock should be retryable")
	}
	if !IsConflictError(fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1205})) {
		t.Error("wrapped lock wait timeout should be retryable")
	}
	if IsConflictError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}) {
		t.Error("duplicate key is not a conflict")
	}
}
