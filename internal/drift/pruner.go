package drift

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/xaenox/labelbot/internal/storage"
)

// DefaultPruneSchedule runs at the top of every hour.
const DefaultPruneSchedule = "0 * * * *"

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule parses a standard 5-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", expr, err)
	}
	return sched, nil
}

// Pruner deletes expired edit records from every registered log on a cron
// schedule. Detection filters by TTL on read, so pruning only bounds storage.
type Pruner struct {
	schedule cron.Schedule
	ttl      time.Duration
	logs     map[string]storage.EditLog
	logger   *zap.Logger
	now      func() time.Time
}

func NewPruner(expr string, ttl time.Duration, logs map[string]storage.EditLog, logger *zap.Logger) (*Pruner, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Pruner{
		schedule: sched,
		ttl:      ttl,
		logs:     logs,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// PruneOnce removes records older than the TTL and returns how many went.
func (p *Pruner) PruneOnce(ctx context.Context) int {
	cutoff := p.now().Add(-p.ttl)

	scopes := make([]string, 0, len(p.logs))
	for scope := range p.logs {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)

	total := 0
	for _, scope := range scopes {
		n, err := p.logs[scope].PruneEdits(ctx, cutoff)
		if err != nil {
			p.logger.Error("Failed to prune edit records", zap.Error(err), zap.String("scope", scope))
			continue
		}
		total += n
	}
	if total > 0 {
		p.logger.Info("Pruned expired edit records", zap.Int("count", total), zap.Time("cutoff", cutoff))
	}
	return total
}

// Run blocks, pruning at every scheduled time until ctx is done.
func (p *Pruner) Run(ctx context.Context) {
	for {
		now := p.now()
		next := p.schedule.Next(now)
		p.logger.Debug("Next edit log prune", zap.Time("at", next))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		p.PruneOnce(ctx)
	}
}
