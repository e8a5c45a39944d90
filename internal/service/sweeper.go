package service

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"interview-service/internal/models"
)

// Sweeper transitions stale in-progress sessions to time_expired. It runs
// once at start and then on a fixed interval.
type Sweeper struct {
	store    SessionStore
	interval time.Duration
}

func NewSweeper(store SessionStore, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, interval: interval}
}

// Start launches the sweep loop in a goroutine. It stops when ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		s.Sweep(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Sweep expires every in-progress session whose deadline has passed. A
// failure on one session is logged and does not halt the scan.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now()
	stale, err := s.store.FindStale(ctx, now)
	if err != nil {
		log.Printf("Sweeper: failed to list stale sessions: %v", err)
		return
	}
	expired := 0
	for i := range stale {
		err := s.store.Update(ctx, stale[i].ID, bson.M{
			"status":   models.StatusTimeExpired,
			"end_time": now,
		})
		if err != nil {
			log.Printf("Sweeper: failed to expire session %s: %v", stale[i].ID, err)
			continue
		}
		expired++
	}
	if len(stale) > 0 {
		log.Printf("Sweeper: expired %d/%d stale sessions", expired, len(stale))
	}
}
