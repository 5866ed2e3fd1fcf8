package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisJobQueueEnqueueWritesStatusAndStream(t *testing.T) {
	q, ctx := newTestQueue(t)

	job, err := q.Enqueue(ctx, "order-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.Status != StatusQueued || job.RefID != "order-1" {
		t.Fatalf("unexpected job: %+v", job)
	}

	got, ok, err := q.GetJob(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("get job: ok=%v err=%v", ok, err)
	}
	if got.RefID != "order-1" || got.Status != StatusQueued {
		t.Fatalf("unexpected stored job: %+v", got)
	}

	n, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one stream entry, got %d", n)
	}
}

func TestRedisJobQueueRequeueAndAck(t *testing.T) {
	q, ctx := newTestQueue(t)
	q.ensureGroup(ctx)

	job, err := q.Enqueue(ctx, "image-1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-1",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("readgroup: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one pending message, got %+v", streams)
	}
	msg := streams[0].Messages[0]

	if err := q.requeueAndAck(ctx, msg.ID, job.ID, job.RefID); err != nil {
		t.Fatalf("requeue and ack: %v", err)
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected no pending messages, got %d", pending.Count)
	}

	streams, err = q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-2",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("read requeued message: %v", err)
	}
	got := streams[0].Messages[0]
	if got.Values["job_id"] != job.ID || got.Values["ref_id"] != job.RefID {
		t.Fatalf("unexpected requeued payload: %+v", got.Values)
	}
}

func TestRedisJobQueueMarkFailedAfterMaxRetries(t *testing.T) {
	q, ctx := newTestQueue(t)

	job, err := q.Enqueue(ctx, "order-2")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// Simulate the job having exhausted its retry budget.
	for i := 0; i < q.maxRetries; i++ {
		if _, err := q.markProcessing(ctx, job.ID, job.RefID); err != nil {
			t.Fatalf("mark processing: %v", err)
		}
	}
	if err := q.markFailed(ctx, job.ID, "printer unreachable"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, ok, err := q.GetJob(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("get job: ok=%v err=%v", ok, err)
	}
	if got.Status != StatusFailed || got.ErrorMessage != "printer unreachable" {
		t.Fatalf("unexpected failed job: %+v", got)
	}
	if got.Attempts != q.maxRetries {
		t.Fatalf("expected %d attempts, got %d", q.maxRetries, got.Attempts)
	}
}

func newTestQueue(t *testing.T) (*RedisJobQueue, context.Context) {
	t.Helper()
	redisSrv := miniredis.RunT(t)
	q, err := NewRedisJobQueue(RedisQueueConfig{
		Addr:       redisSrv.Addr(),
		Stream:     "test:jobs",
		Group:      "test-group",
		Consumer:   "consumer-1",
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	return q, context.Background()
}
