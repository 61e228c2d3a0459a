package publisher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"campuspresence/internal/api"
	"campuspresence/internal/metrics"
	"campuspresence/internal/models"
	"campuspresence/internal/prefs"
	"campuspresence/internal/routing"
)

// ErrPermissionDenied is returned by a Source when device location access is
// not granted. It surfaces synchronously from Start and is never retried.
var ErrPermissionDenied = errors.New("location permission denied")

// Pusher is the delivery surface the publisher fans out to
type Pusher interface {
	PushLocation(ctx context.Context, push models.LocationPush) error
	PushGuardianLocation(ctx context.Context, push models.LocationPush) error
}

// AreaResolver converts a fix into a coarse area name before delivery
type AreaResolver interface {
	Resolve(ctx context.Context, lat, lon float64) (string, bool)
}

// Source provides device location fixes at roughly the desired cadence
type Source interface {
	Watch(ctx context.Context) (<-chan models.Fix, error)
}

// Mode selects the fan-out shape for a publishing session
type Mode struct {
	rooms    []string
	guardian bool
}

// RoomMode publishes to a single fixed room
func RoomMode(roomID string) Mode {
	return Mode{rooms: []string{roomID}}
}

// GlobalMode publishes to all current rooms and offers the guardian channel
func GlobalMode(rooms []string) Mode {
	return Mode{rooms: rooms, guardian: true}
}

// Config holds publisher configuration
type Config struct {
	MinInterval time.Duration // floor between handled samples
}

// Publisher owns the sampling loop. Per sample it resolves the coarse area,
// consults the routing policy against the persisted preferences, and fans the
// fix out to each destination independently. Destination failures are
// fire-and-forget; an unauthorized response stops the whole publisher since
// a dead credential will fail every destination identically.
type Publisher struct {
	source      Source
	pusher      Pusher
	store       prefs.Store
	resolver    AreaResolver
	minInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a publisher
func New(source Source, pusher Pusher, store prefs.Store, resolver AreaResolver, config Config) *Publisher {
	minInterval := config.MinInterval
	if minInterval <= 0 {
		minInterval = 5 * time.Second
	}
	return &Publisher{
		source:      source,
		pusher:      pusher,
		store:       store,
		resolver:    resolver,
		minInterval: minInterval,
	}
}

// Start begins sampling in the given mode. It refuses synchronously when the
// subject's role must never publish or when location permission is absent.
func (p *Publisher) Start(ctx context.Context, mode Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("publisher already started")
	}

	role, err := p.store.Role(ctx)
	if err != nil {
		return fmt.Errorf("failed to read role: %w", err)
	}
	if !role.CanPublish() {
		return fmt.Errorf("role %s may not publish locations", role)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	fixes, err := p.source.Watch(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start location sampling: %w", err)
	}

	if err := p.store.SetPublishing(ctx, true); err != nil {
		log.Printf("publisher: failed to persist publishing flag: %v", err)
	}

	p.running = true
	p.cancel = cancel
	p.wg.Add(1)
	go p.run(runCtx, mode, fixes)

	return nil
}

// Stop cancels the sampling subscription and clears the publishing flag.
// After it returns no further delivery starts; deliveries already in flight
// complete or fail silently. Safe to call when not started.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	if err := p.store.SetPublishing(context.Background(), false); err != nil {
		log.Printf("publisher: failed to clear publishing flag: %v", err)
	}
}

// Running reports whether the sampling loop is active
func (p *Publisher) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Wait blocks until the sampling loop has exited, for orderly shutdown
func (p *Publisher) Wait() {
	p.wg.Wait()
}

// run consumes fixes until the subscription is cancelled, enforcing the
// minimum interval between handled samples
func (p *Publisher) run(ctx context.Context, mode Mode, fixes <-chan models.Fix) {
	defer p.wg.Done()

	var lastHandled time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-fixes:
			if !ok {
				return
			}
			if !lastHandled.IsZero() && time.Since(lastHandled) < p.minInterval {
				continue
			}
			lastHandled = time.Now()
			p.handle(ctx, mode, fix)
		}
	}
}

// handle resolves the area, consults the routing policy and submits one
// asynchronous delivery per destination. It never blocks on delivery
// outcomes, so the next sample is not held up by a slow destination.
func (p *Publisher) handle(ctx context.Context, mode Mode, fix models.Fix) {
	area, _ := p.resolver.Resolve(ctx, fix.Lat, fix.Lon)

	sharing, err := p.store.Preferences(ctx)
	if err != nil {
		log.Printf("publisher: failed to read preferences: %v", err)
		return
	}
	role, err := p.store.Role(ctx)
	if err != nil {
		log.Printf("publisher: failed to read role: %v", err)
		return
	}

	destinations := routing.Decide(role, sharing, mode.rooms, mode.guardian)
	for _, dest := range destinations {
		push := models.LocationPush{
			Area:      area,
			RoomID:    dest.RoomID,
			Timestamp: fix.Timestamp,
			Lat:       fix.Lat,
			Lon:       fix.Lon,
		}
		p.wg.Add(1)
		go p.deliver(ctx, dest, push)
	}
}

// deliver performs one fire-and-forget delivery. Transport failures are
// logged and left for the next sample; an unauthorized response stops the
// publisher.
func (p *Publisher) deliver(ctx context.Context, dest routing.Destination, push models.LocationPush) {
	defer p.wg.Done()

	attemptID := uuid.NewString()

	var err error
	if dest.Kind == routing.DestinationGuardian {
		err = p.pusher.PushGuardianLocation(ctx, push)
	} else {
		err = p.pusher.PushLocation(ctx, push)
	}

	switch {
	case err == nil:
		metrics.ObserveDelivery(string(dest.Kind), "ok")
	case errors.Is(err, api.ErrUnauthorized):
		metrics.ObserveDelivery(string(dest.Kind), "unauthorized")
		log.Printf("publisher: delivery %s unauthorized, stopping: %v", attemptID, err)
		p.Stop()
	default:
		metrics.ObserveDelivery(string(dest.Kind), "error")
		log.Printf("publisher: delivery %s to %s failed: %v", attemptID, dest.Kind, err)
	}
}
