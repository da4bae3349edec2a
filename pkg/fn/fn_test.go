package fn

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestResultOkErr(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok result misreported")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatalf("unwrap: got %d, %v", v, err)
	}

	e := Err[int](errors.New("boom"))
	if e.IsOk() {
		t.Fatal("Err result misreported")
	}
	if _, err := e.Unwrap(); err == nil {
		t.Fatal("Err result must carry its error")
	}
}

func TestFromPair(t *testing.T) {
	if r := FromPair("x", nil); r.IsErr() {
		t.Error("nil error should be Ok")
	}
	if r := FromPair("x", errors.New("nope")); r.IsOk() {
		t.Error("non-nil error should be Err")
	}
}

func TestParMapPreservesOrder(t *testing.T) {
	in := []int{1, 2, 3, 4, 5, 6, 7, 8}
	out := ParMap(in, 3, func(v int) int { return v * v })
	for i, v := range out {
		if v != in[i]*in[i] {
			t.Errorf("index %d: got %d", i, v)
		}
	}
}

func TestParMapBoundsConcurrency(t *testing.T) {
	var active, peak int64
	in := make([]int, 20)
	ParMap(in, 4, func(int) int {
		cur := atomic.AddInt64(&active, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if cur <= p || atomic.CompareAndSwapInt64(&peak, p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return 0
	})
	if peak > 4 {
		t.Errorf("concurrency exceeded bound: peak %d", peak)
	}
}

func TestParMapEmpty(t *testing.T) {
	out := ParMap(nil, 4, func(v int) int { return v })
	if len(out) != 0 {
		t.Fatal("expected empty output")
	}
}

func TestFanOutOrderAndIsolation(t *testing.T) {
	out := FanOut(
		func() int { return 1 },
		func() int { time.Sleep(10 * time.Millisecond); return 2 },
		func() int { return 3 },
	)
	if out[0] != 1 || out[1] != 2 || out[2] != 3 {
		t.Errorf("fan-out results out of order: %v", out)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	var calls int
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}, func(context.Context) Result[string] {
		calls++
		if calls < 3 {
			return Errf[string]("attempt %d", calls)
		}
		return Ok("done")
	})
	if r.IsErr() {
		t.Fatal("expected eventual success")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	var calls int
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond}, func(context.Context) Result[int] {
		calls++
		return Errf[int]("always fails")
	})
	if r.IsOk() || calls != 2 {
		t.Fatalf("expected 2 failed attempts, got %d ok=%v", calls, r.IsOk())
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry(ctx, RetryOpts{MaxAttempts: 5, InitialWait: time.Hour}, func(context.Context) Result[int] {
		return Errf[int]("fail")
	})
	_, err := r.Unwrap()
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
