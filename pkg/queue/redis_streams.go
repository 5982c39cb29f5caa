// Package queue distributes file jobs over Redis streams.
//
// Jobs go to <prefix>:jobs and are read by the "workers" consumer group.
// Each worker publishes a ResultMessage to <prefix>:results before it
// acknowledges the job, so a job is never acknowledged without a result.
// Jobs left pending longer than the visibility timeout are claimed by
// another worker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const workersGroup = "workers"

// Client is the subset of *redis.Client used by Streams.
type Client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XPendingExt(ctx context.Context, a *redis.XPendingExtArgs) *redis.XPendingExtCmd
	XClaim(ctx context.Context, a *redis.XClaimArgs) *redis.XMessageSliceCmd
	XGroupDestroy(ctx context.Context, stream, group string) *redis.IntCmd
	Close() error
}

var _ Client = (*redis.Client)(nil)

// Streams is the jobs and results stream pair under one key prefix.
type Streams struct {
	client Client
	prefix string
}

// NewStreams uses client with stream names under prefix.
func NewStreams(client Client, prefix string) *Streams {
	return &Streams{client: client, prefix: prefix}
}

// Dial connects to the Redis server at addr and checks it answers.
func Dial(ctx context.Context, addr, prefix string) (*Streams, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return NewStreams(client, prefix), nil
}

func (s *Streams) Close() error { return s.client.Close() }

func (s *Streams) jobsStream() string    { return s.prefix + ":jobs" }
func (s *Streams) resultsStream() string { return s.prefix + ":results" }

// EnsureGroups creates the workers group and the jobs stream if needed.
// The group starts at the beginning of the stream so jobs added before any
// worker started are still delivered.
func (s *Streams) EnsureGroups(ctx context.Context) error {
	return s.ensureGroup(ctx, s.jobsStream(), workersGroup)
}

func (s *Streams) ensureGroup(ctx context.Context, stream, group string) error {
	err := s.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", group, stream, err)
	}
	return nil
}

// Producer APIs

// AddJob appends job to the jobs stream and returns its entry id.
func (s *Streams) AddJob(ctx context.Context, job *JobMessage) (string, error) {
	return s.add(ctx, s.jobsStream(), job)
}

// AddResult appends res to the results stream.
func (s *Streams) AddResult(ctx context.Context, res *ResultMessage) (string, error) {
	return s.add(ctx, s.resultsStream(), res)
}

func (s *Streams) add(ctx context.Context, stream string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: map[string]any{"data": b}}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

// Consumer APIs

// ReadJob waits up to block for the next job. It returns a nil job when none arrived.
func (s *Streams) ReadJob(ctx context.Context, consumer string, block time.Duration) (string, *JobMessage, error) {
	var job JobMessage
	id, ok, err := s.read(ctx, s.jobsStream(), workersGroup, consumer, block, &job)
	if err != nil || !ok {
		// id is set when the message arrived but could not be decoded.
		return id, nil, err
	}
	return id, &job, nil
}

func (s *Streams) AckJob(ctx context.Context, id string) error {
	return s.client.XAck(ctx, s.jobsStream(), workersGroup, id).Err()
}

func (s *Streams) read(ctx context.Context, stream, group, consumer string, block time.Duration, v any) (string, bool, error) {
	res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("xreadgroup %s: %w", stream, err)
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return "", false, nil
	}
	msg := res[0].Messages[0]
	if err := json.Unmarshal(bytesFromAny(msg.Values["data"]), v); err != nil {
		return msg.ID, false, fmt.Errorf("decode message %s: %w", msg.ID, err)
	}
	return msg.ID, true, nil
}

// ClaimStaleJobs takes over up to count jobs that have been pending for at least minIdle.
func (s *Streams) ClaimStaleJobs(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]ClaimedJob, error) {
	pend, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.jobsStream(), Group: workersGroup, Idle: minIdle, Count: int64(count), Start: "-", End: "+",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xpending: %w", err)
	}
	ids := make([]string, 0, len(pend))
	for _, p := range pend {
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	claimed, err := s.client.XClaim(ctx, &redis.XClaimArgs{
		Stream: s.jobsStream(), Group: workersGroup, Consumer: consumer, MinIdle: minIdle, Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim: %w", err)
	}
	out := make([]ClaimedJob, 0, len(claimed))
	for _, c := range claimed {
		var job JobMessage
		if err := json.Unmarshal(bytesFromAny(c.Values["data"]), &job); err != nil {
			out = append(out, ClaimedJob{ID: c.ID})
			continue
		}
		out = append(out, ClaimedJob{ID: c.ID, Job: &job})
	}
	return out, nil
}

// CollectResults reads results for batch until n have arrived or ctx is done.
// It uses its own consumer group, so concurrent collectors each see every result.
// The group is destroyed when collection ends.
func (s *Streams) CollectResults(ctx context.Context, batch string, n int, block time.Duration, onResult func(*ResultMessage)) error {
	group := "collector:" + batch
	if err := s.ensureGroup(ctx, s.resultsStream(), group); err != nil {
		return err
	}
	defer s.client.XGroupDestroy(context.WithoutCancel(ctx), s.resultsStream(), group)
	for seen := 0; seen < n; {
		if err := ctx.Err(); err != nil {
			return err
		}
		var res ResultMessage
		id, ok, err := s.read(ctx, s.resultsStream(), group, "collector", block, &res)
		if id != "" {
			if ackErr := s.client.XAck(ctx, s.resultsStream(), group, id).Err(); ackErr != nil {
				return ackErr
			}
		}
		if err != nil && id == "" {
			return err
		}
		// Undecodable messages are acknowledged and skipped.
		if !ok || res.Batch != batch {
			continue
		}
		seen++
		onResult(&res)
	}
	return nil
}

// handle Redis returning either string or []byte
func bytesFromAny(v any) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		b, _ := json.Marshal(t)
		return b
	}
}
