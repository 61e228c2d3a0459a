package publisher

import (
	"context"
	"log"
	"time"

	"campuspresence/internal/models"
)

// FuncSource adapts a sampling function into a Source by polling it on a
// fixed cadence. The first sample runs synchronously inside Watch so a
// permission failure surfaces to the caller instead of dying in a goroutine.
type FuncSource struct {
	Interval time.Duration
	Sample   func(ctx context.Context) (models.Fix, error)
}

// Watch starts the polling loop and returns the fix channel. The channel is
// closed when ctx is cancelled.
func (s *FuncSource) Watch(ctx context.Context) (<-chan models.Fix, error) {
	interval := s.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	first, err := s.Sample(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan models.Fix, 1)
	out <- first

	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fix, err := s.Sample(ctx)
				if err != nil {
					log.Printf("publisher: location sample failed: %v", err)
					continue
				}
				select {
				case out <- fix:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
