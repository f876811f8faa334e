package reconcile

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/xaenox/labelbot/internal/models"
	"github.com/xaenox/labelbot/internal/remote"
)

type TaskKind int

const (
	TaskPut TaskKind = iota
	TaskDelete
)

func (k TaskKind) String() string {
	if k == TaskDelete {
		return "delete"
	}
	return "put"
}

// Task is one remote write produced by a local mutation.
type Task struct {
	Kind   TaskKind
	Record models.RemoteRecord
}

// PutTask upserts r remotely.
func PutTask(r models.RemoteRecord) Task {
	return Task{Kind: TaskPut, Record: r}
}

// DeleteTask removes itemID remotely.
func DeleteTask(itemID string) Task {
	return Task{Kind: TaskDelete, Record: models.RemoteRecord{ItemID: itemID}}
}

// Enqueuer accepts fire-and-forget remote writes.
type Enqueuer interface {
	Enqueue(t Task) bool
}

// NopEnqueuer drops every task.
type NopEnqueuer struct{}

func (NopEnqueuer) Enqueue(Task) bool { return false }

// Pusher drains a bounded queue of tasks into a remote store on background
// workers. Failures are logged and dropped; local state is never rolled back.
type Pusher struct {
	scope  string
	remote remote.Store
	logger *zap.Logger

	mu     sync.RWMutex
	queue  chan Task
	closed bool
	wg     sync.WaitGroup
}

var _ Enqueuer = (*Pusher)(nil)

func NewPusher(scope string, rs remote.Store, queueSize int, logger *zap.Logger) *Pusher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Pusher{
		scope:  scope,
		remote: rs,
		logger: logger,
		queue:  make(chan Task, queueSize),
	}
}

// Start launches workers that run until Close, or until ctx is cancelled.
func (p *Pusher) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t, ok := <-p.queue:
					if !ok {
						return
					}
					p.push(ctx, t)
				}
			}
		}()
	}
}

// Enqueue never blocks. A full or closed queue drops the task with a warning.
func (p *Pusher) Enqueue(t Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}
	select {
	case p.queue <- t:
		return true
	default:
		p.logger.Warn("Remote push queue full, dropping task",
			zap.String("scope", p.scope),
			zap.Stringer("kind", t.Kind),
			zap.String("item_id", t.Record.ItemID))
		return false
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (p *Pusher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pusher) push(ctx context.Context, t Task) {
	var err error
	switch t.Kind {
	case TaskDelete:
		err = p.remote.DeleteCategorization(ctx, t.Record.ItemID)
	default:
		err = p.remote.PutCategorization(ctx, t.Record)
	}
	if err == nil || errors.Is(err, remote.ErrDisabled) {
		return
	}
	p.logger.Warn("Remote push failed",
		zap.Error(err),
		zap.String("scope", p.scope),
		zap.Stringer("kind", t.Kind),
		zap.String("item_id", t.Record.ItemID))
}
