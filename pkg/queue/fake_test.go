package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis is an in-memory stand-in for the stream commands used by Streams.
// Reads never block; an empty read reports redis.Nil like a timed-out XREADGROUP.
type fakeRedis struct {
	mu      sync.Mutex
	seq     int
	now     time.Time
	streams map[string][]redis.XMessage
	groups  map[string]*fakeGroup

	addErr map[string]error // per stream
}

type fakeGroup struct {
	next    int
	pending map[string]*fakePending
	order   []string
}

type fakePending struct {
	consumer  string
	delivered time.Time
	count     int64
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		now:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		streams: map[string][]redis.XMessage{},
		groups:  map[string]*fakeGroup{},
		addErr:  map[string]error{},
	}
}

func (f *fakeRedis) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fakeRedis) pendingCount(stream, group string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := f.groups[stream+"|"+group]
	if g == nil {
		return 0
	}
	return len(g.pending)
}

func (f *fakeRedis) hasGroup(stream, group string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.groups[stream+"|"+group]
	return ok
}

func (f *fakeRedis) messages(stream string) []redis.XMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]redis.XMessage(nil), f.streams[stream]...)
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (f *fakeRedis) Close() error { return nil }

func (f *fakeRedis) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStatusCmd(ctx)
	key := stream + "|" + group
	if _, ok := f.groups[key]; ok {
		cmd.SetErr(errors.New("BUSYGROUP Consumer Group name already exists"))
		return cmd
	}
	if _, ok := f.streams[stream]; !ok {
		f.streams[stream] = nil
	}
	g := &fakeGroup{pending: map[string]*fakePending{}}
	if start == "$" {
		g.next = len(f.streams[stream])
	}
	f.groups[key] = g
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) XGroupDestroy(ctx context.Context, stream, group string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	key := stream + "|" + group
	if _, ok := f.groups[key]; !ok {
		cmd.SetVal(0)
		return cmd
	}
	delete(f.groups, key)
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	if err := f.addErr[a.Stream]; err != nil {
		cmd.SetErr(err)
		return cmd
	}
	f.seq++
	id := fmt.Sprintf("%d-0", f.seq)
	values := map[string]any{}
	for k, v := range a.Values.(map[string]any) {
		// Redis hands values back as strings.
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		values[k] = v
	}
	f.streams[a.Stream] = append(f.streams[a.Stream], redis.XMessage{ID: id, Values: values})
	cmd.SetVal(id)
	return cmd
}

func (f *fakeRedis) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewXStreamSliceCmd(ctx)
	stream := a.Streams[0]
	g := f.groups[stream+"|"+a.Group]
	if g == nil {
		cmd.SetErr(fmt.Errorf("NOGROUP No such key '%s' or consumer group '%s'", stream, a.Group))
		return cmd
	}
	msgs := f.streams[stream]
	if g.next >= len(msgs) {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	msg := msgs[g.next]
	g.next++
	g.pending[msg.ID] = &fakePending{consumer: a.Consumer, delivered: f.now, count: 1}
	g.order = append(g.order, msg.ID)
	cmd.SetVal([]redis.XStream{{Stream: stream, Messages: []redis.XMessage{msg}}})
	return cmd
}

func (f *fakeRedis) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	g := f.groups[stream+"|"+group]
	var n int64
	for _, id := range ids {
		if g == nil {
			break
		}
		if _, ok := g.pending[id]; ok {
			delete(g.pending, id)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (f *fakeRedis) XPendingExt(ctx context.Context, a *redis.XPendingExtArgs) *redis.XPendingExtCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewXPendingExtCmd(ctx)
	g := f.groups[a.Stream+"|"+a.Group]
	var out []redis.XPendingExt
	if g != nil {
		for _, id := range g.order {
			p, ok := g.pending[id]
			if !ok {
				continue
			}
			idle := f.now.Sub(p.delivered)
			if idle < a.Idle {
				continue
			}
			out = append(out, redis.XPendingExt{ID: id, Consumer: p.consumer, Idle: idle, RetryCount: p.count})
			if int64(len(out)) == a.Count {
				break
			}
		}
	}
	cmd.SetVal(out)
	return cmd
}

func (f *fakeRedis) XClaim(ctx context.Context, a *redis.XClaimArgs) *redis.XMessageSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewXMessageSliceCmd(ctx)
	g := f.groups[a.Stream+"|"+a.Group]
	var out []redis.XMessage
	for _, id := range a.Messages {
		p, ok := g.pending[id]
		if !ok || f.now.Sub(p.delivered) < a.MinIdle {
			continue
		}
		p.consumer = a.Consumer
		p.delivered = f.now
		p.count++
		for _, m := range f.streams[a.Stream] {
			if m.ID == id {
				out = append(out, m)
			}
		}
	}
	cmd.SetVal(out)
	return cmd
}
