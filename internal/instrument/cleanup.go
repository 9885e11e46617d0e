package instrument

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

type cleanupStore interface {
	DeleteAuditBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteExpiredTokens(ctx context.Context) (int64, error)
}

// Cleanup deletes audit events older than retentionDays and expired
// refresh tokens.
func Cleanup(ctx context.Context, s cleanupStore, retentionDays int) {
	if retentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		n, err := s.DeleteAuditBefore(ctx, cutoff)
		if err != nil {
			log.Errorf("audit cleanup: %v", err)
		} else if n > 0 {
			log.Infof("Audit cleanup: deleted %d old events", n)
		}
	}

	n, err := s.DeleteExpiredTokens(ctx)
	if err != nil {
		log.Errorf("token cleanup: %v", err)
	} else if n > 0 {
		log.Infof("Token cleanup: deleted %d expired refresh tokens", n)
	}
}

// Janitor runs Cleanup on an interval until stopped.
type Janitor struct {
	store         cleanupStore
	retentionDays int
	interval      time.Duration
	cancel        context.CancelFunc
	done          chan struct{}
}

func NewJanitor(s cleanupStore, retentionDays int, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{store: s, retentionDays: retentionDays, interval: interval}
}

func (j *Janitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.done = make(chan struct{})
	go func() {
		defer close(j.done)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		Cleanup(ctx, j.store, j.retentionDays)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				Cleanup(ctx, j.store, j.retentionDays)
			}
		}
	}()
}

func (j *Janitor) Stop() {
	if j.cancel == nil {
		return
	}
	j.cancel()
	<-j.done
}
