package audit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLog_DeliversToHandlers(t *testing.T) {
	var mu sync.Mutex
	var got []Event
	logger := New(10, WithHandler(func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	}))

	logger.Log(Event{Action: ActionSignIn, Result: ResultSuccess, UserID: "u1"})
	logger.Log(Event{Action: ActionRefresh, Result: ResultFailure})

	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("delivered %d events, want 2", len(got))
	}
	if got[0].Action != ActionSignIn || got[0].UserID != "u1" {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Action != ActionRefresh || got[1].Result != ResultFailure {
		t.Errorf("second event = %+v", got[1])
	}
}

func TestLog_SetsTimestamp(t *testing.T) {
	var mu sync.Mutex
	var got Event
	logger := New(1, WithHandler(func(e Event) {
		mu.Lock()
		got = e
		mu.Unlock()
	}))

	logger.Log(Event{Action: ActionSignOut, Result: ResultSuccess})
	_ = logger.Close()

	mu.Lock()
	defer mu.Unlock()
	if got.Timestamp.IsZero() {
		t.Error("Log must stamp events missing a timestamp")
	}
}

func TestLog_KeepsExplicitTimestamp(t *testing.T) {
	ts := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	var mu sync.Mutex
	var got Event
	logger := New(1, WithHandler(func(e Event) {
		mu.Lock()
		got = e
		mu.Unlock()
	}))

	logger.Log(Event{Action: ActionSignIn, Result: ResultSuccess, Timestamp: ts})
	_ = logger.Close()

	mu.Lock()
	defer mu.Unlock()
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, ts)
	}
}

func TestClose_DrainsQueue(t *testing.T) {
	var mu sync.Mutex
	count := 0
	logger := New(100, WithHandler(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}))

	for i := 0; i < 50; i++ {
		logger.Log(Event{Action: ActionRequestRetry, Result: ResultFailure})
	}
	_ = logger.Close()

	mu.Lock()
	defer mu.Unlock()
	if count != 50 {
		t.Errorf("handled %d events before Close returned, want 50", count)
	}
}

func TestLogAfterClose_Dropped(t *testing.T) {
	logger := New(1)
	_ = logger.Close()

	// Must not block or panic.
	logger.Log(Event{Action: ActionSignIn, Result: ResultSuccess})
}

func TestContextHelpers(t *testing.T) {
	logger := New(1)
	defer logger.Close()

	ctx := WithContext(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Error("FromContext should return the stored logger")
	}
	if got := FromContext(context.Background()); got != nil {
		t.Error("FromContext on empty context should return nil")
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("RequestID = %q, want req-123", got)
	}
	if got := RequestID(context.Background()); got != "" {
		t.Errorf("RequestID on empty context = %q, want empty", got)
	}
}
