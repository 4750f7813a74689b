package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func waitForStatus(t *testing.T, c Client, jobID string, want JobStatus) *JobState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		state, err := c.JobStatus(context.Background(), jobID)
		if err != nil {
			t.Fatalf("JobStatus: %v", err)
		}
		if state.Status == want {
			return state
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestMemoryClientRunsCheckJob(t *testing.T) {
	c := NewMemoryClient(func(_ context.Context, taskType string, payload []byte) (any, error) {
		if taskType != TaskTypeDomainCheck {
			t.Errorf("unexpected task type %s", taskType)
		}
		var p CheckPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return map[string]string{"domain": p.Domain, "status": "free"}, nil
	})

	jobID, err := c.EnqueueCheck(context.Background(), "example.com", time.Second)
	if err != nil {
		t.Fatalf("EnqueueCheck: %v", err)
	}

	state := waitForStatus(t, c, jobID, JobFinished)
	var result map[string]string
	if err := json.Unmarshal(state.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result["domain"] != "example.com" || result["status"] != "free" {
		t.Errorf("unexpected result: %v", result)
	}
}

func TestCheckPayloadCarriesMillisecondEnqueueTime(t *testing.T) {
	var captured CheckPayload
	c := NewMemoryClient(func(_ context.Context, _ string, payload []byte) (any, error) {
		if err := json.Unmarshal(payload, &captured); err != nil {
			return nil, err
		}
		return map[string]string{"status": "free"}, nil
	})

	before := time.Now().UnixMilli()
	jobID, err := c.EnqueueCheck(context.Background(), "example.com", time.Second)
	if err != nil {
		t.Fatalf("EnqueueCheck: %v", err)
	}
	waitForStatus(t, c, jobID, JobFinished)
	after := time.Now().UnixMilli()

	if captured.EnqueuedAtMs < before || captured.EnqueuedAtMs > after {
		t.Errorf("enqueued_at_ms = %d, want within [%d, %d]", captured.EnqueuedAtMs, before, after)
	}
}

func TestMemoryClientRunnerFailure(t *testing.T) {
	c := NewMemoryClient(func(_ context.Context, _ string, _ []byte) (any, error) {
		return nil, errors.New("probe exploded")
	})

	jobID, _ := c.EnqueueCheck(context.Background(), "example.com", time.Second)
	state := waitForStatus(t, c, jobID, JobFailed)
	if state.Err != "probe exploded" {
		t.Errorf("expected error message, got %q", state.Err)
	}
}

func TestMemoryClientNilRunnerStaysPending(t *testing.T) {
	c := NewMemoryClient(nil)

	jobID, _ := c.EnqueueCheck(context.Background(), "example.com", time.Second)
	state, err := c.JobStatus(context.Background(), jobID)
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	if state.Status != JobPending {
		t.Errorf("expected pending, got %s", state.Status)
	}

	depth, err := c.QueueDepth(context.Background())
	if err != nil || depth != 1 {
		t.Errorf("expected depth 1, got %d (err %v)", depth, err)
	}
}

func TestMemoryClientUnknownJob(t *testing.T) {
	c := NewMemoryClient(nil)
	if _, err := c.JobStatus(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryClientEnqueueTwiceIndependentJobs(t *testing.T) {
	c := NewMemoryClient(func(_ context.Context, _ string, _ []byte) (any, error) {
		return "done", nil
	})

	first, _ := c.EnqueueCheck(context.Background(), "example.com", time.Second)
	second, _ := c.EnqueueCheck(context.Background(), "example.com", time.Second)
	if first == second {
		t.Fatal("expected independent job IDs for the same domain")
	}
	waitForStatus(t, c, first, JobFinished)
	waitForStatus(t, c, second, JobFinished)
}

func TestMemoryClientLock(t *testing.T) {
	c := NewMemoryClient(nil)
	ctx := context.Background()

	ok, err := c.SetIfAbsent(ctx, "lock", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquisition should succeed, got ok=%v err=%v", ok, err)
	}
	ok, _ = c.SetIfAbsent(ctx, "lock", time.Minute)
	if ok {
		t.Fatal("second acquisition should fail while held")
	}

	if err := c.Delete(ctx, "lock"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ok, _ = c.SetIfAbsent(ctx, "lock", time.Minute)
	if !ok {
		t.Fatal("acquisition after release should succeed")
	}
}

func TestMemoryClientLockTTLExpiry(t *testing.T) {
	c := NewMemoryClient(nil)
	ctx := context.Background()

	if ok, _ := c.SetIfAbsent(ctx, "lock", 20*time.Millisecond); !ok {
		t.Fatal("first acquisition should succeed")
	}
	time.Sleep(30 * time.Millisecond)
	if ok, _ := c.SetIfAbsent(ctx, "lock", time.Minute); !ok {
		t.Fatal("acquisition after TTL expiry should succeed")
	}
}

func TestMemoryClientActiveWorkers(t *testing.T) {
	withRunner := NewMemoryClient(func(_ context.Context, _ string, _ []byte) (any, error) { return nil, nil })
	if got := withRunner.ActiveWorkers(context.Background()); got != 1 {
		t.Errorf("expected 1 in-process worker, got %d", got)
	}
	withoutRunner := NewMemoryClient(nil)
	if got := withoutRunner.ActiveWorkers(context.Background()); got != 0 {
		t.Errorf("expected 0 workers, got %d", got)
	}
}
