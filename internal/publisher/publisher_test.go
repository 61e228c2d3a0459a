package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"campuspresence/internal/api"
	"campuspresence/internal/models"
	"campuspresence/internal/prefs"
)

type fakePusher struct {
	mu       sync.Mutex
	room     []models.LocationPush
	guardian []models.LocationPush
	err      error
}

func (f *fakePusher) PushLocation(ctx context.Context, push models.LocationPush) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.room = append(f.room, push)
	return nil
}

func (f *fakePusher) PushGuardianLocation(ctx context.Context, push models.LocationPush) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.guardian = append(f.guardian, push)
	return nil
}

func (f *fakePusher) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.room), len(f.guardian)
}

type chanSource struct {
	fixes    chan models.Fix
	watchErr error
}

func (s *chanSource) Watch(ctx context.Context) (<-chan models.Fix, error) {
	if s.watchErr != nil {
		return nil, s.watchErr
	}
	return s.fixes, nil
}

type staticResolver struct{ area string }

func (r *staticResolver) Resolve(ctx context.Context, lat, lon float64) (string, bool) {
	return r.area, r.area != ""
}

func studentStore(t *testing.T, sharing models.SharingPreference) prefs.Store {
	t.Helper()
	store := prefs.NewMemoryStore()
	ctx := context.Background()
	if err := store.SetRole(ctx, models.RoleStudent); err != nil {
		t.Fatalf("SetRole failed: %v", err)
	}
	if err := store.SetPreferences(ctx, sharing); err != nil {
		t.Fatalf("SetPreferences failed: %v", err)
	}
	return store
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPublisher_RefusesObserverRole(t *testing.T) {
	store := prefs.NewMemoryStore() // role defaults to observer
	source := &chanSource{fixes: make(chan models.Fix)}
	p := New(source, &fakePusher{}, store, &staticResolver{area: "Quad"}, Config{})

	if err := p.Start(context.Background(), RoomMode("CS101")); err == nil {
		t.Fatal("Expected start to be refused for observer role")
	}
	if p.Running() {
		t.Error("Expected publisher to not be running")
	}
}

func TestPublisher_RefusesWithoutPermission(t *testing.T) {
	store := studentStore(t, models.SharingPreference{ShareWithClasses: true})
	source := &chanSource{watchErr: ErrPermissionDenied}
	p := New(source, &fakePusher{}, store, &staticResolver{area: "Quad"}, Config{})

	err := p.Start(context.Background(), RoomMode("CS101"))
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Expected permission error surfaced synchronously, got %v", err)
	}

	on, _ := store.Publishing(context.Background())
	if on {
		t.Error("Expected publishing flag to stay clear on refused start")
	}
}

func TestPublisher_FansOutToAllDestinations(t *testing.T) {
	store := studentStore(t, models.SharingPreference{ShareWithClasses: true, ShareWithGuardian: true})
	source := &chanSource{fixes: make(chan models.Fix, 1)}
	pusher := &fakePusher{}
	p := New(source, pusher, store, &staticResolver{area: "Library"}, Config{})

	if err := p.Start(context.Background(), GlobalMode([]string{"room1", "room2"})); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	on, _ := store.Publishing(context.Background())
	if !on {
		t.Error("Expected publishing flag to be set after start")
	}

	now := time.Now().UTC()
	source.fixes <- models.Fix{Lat: 48.78, Lon: 2.36, Timestamp: now}

	waitFor(t, 2*time.Second, func() bool {
		rooms, guardians := pusher.counts()
		return rooms == 2 && guardians == 1
	}, "Timed out waiting for fan-out deliveries")

	pusher.mu.Lock()
	defer pusher.mu.Unlock()
	for _, push := range pusher.room {
		if push.Area != "Library" {
			t.Errorf("Expected resolved area on push, got %q", push.Area)
		}
		if push.RoomID != "room1" && push.RoomID != "room2" {
			t.Errorf("Unexpected room id %q", push.RoomID)
		}
	}
	if pusher.guardian[0].RoomID != "" {
		t.Error("Expected guardian push without room id")
	}
}

func TestPublisher_MinIntervalThrottlesSamples(t *testing.T) {
	store := studentStore(t, models.SharingPreference{ShareWithClasses: true})
	source := &chanSource{fixes: make(chan models.Fix, 2)}
	pusher := &fakePusher{}
	p := New(source, pusher, store, &staticResolver{area: "Quad"}, Config{MinInterval: time.Hour})

	if err := p.Start(context.Background(), RoomMode("CS101")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	now := time.Now().UTC()
	source.fixes <- models.Fix{Lat: 1, Lon: 2, Timestamp: now}
	source.fixes <- models.Fix{Lat: 1, Lon: 2, Timestamp: now.Add(time.Second)}

	waitFor(t, 2*time.Second, func() bool {
		rooms, _ := pusher.counts()
		return rooms >= 1
	}, "Timed out waiting for first delivery")

	// Give the second, throttled sample a chance to (wrongly) deliver
	time.Sleep(200 * time.Millisecond)
	rooms, _ := pusher.counts()
	if rooms != 1 {
		t.Errorf("Expected second sample within min interval to be dropped, got %d deliveries", rooms)
	}
}

func TestPublisher_TransportFailureDoesNotStop(t *testing.T) {
	store := studentStore(t, models.SharingPreference{ShareWithClasses: true})
	source := &chanSource{fixes: make(chan models.Fix, 1)}
	pusher := &fakePusher{err: fmt.Errorf("connection refused")}
	p := New(source, pusher, store, &staticResolver{area: "Quad"}, Config{})

	if err := p.Start(context.Background(), RoomMode("CS101")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	source.fixes <- models.Fix{Lat: 1, Lon: 2, Timestamp: time.Now()}
	time.Sleep(200 * time.Millisecond)

	if !p.Running() {
		t.Error("Expected publisher to keep running through a transport failure")
	}
}

func TestPublisher_UnauthorizedStopsPublisher(t *testing.T) {
	store := studentStore(t, models.SharingPreference{ShareWithClasses: true})
	source := &chanSource{fixes: make(chan models.Fix, 1)}
	pusher := &fakePusher{err: fmt.Errorf("push rejected: %w", api.ErrUnauthorized)}
	p := New(source, pusher, store, &staticResolver{area: "Quad"}, Config{})

	if err := p.Start(context.Background(), RoomMode("CS101")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	source.fixes <- models.Fix{Lat: 1, Lon: 2, Timestamp: time.Now()}

	waitFor(t, 2*time.Second, func() bool { return !p.Running() },
		"Timed out waiting for publisher to stop itself")

	on, _ := store.Publishing(context.Background())
	if on {
		t.Error("Expected publishing flag cleared after self-stop")
	}
}

func TestPublisher_StopIsSafeWhenNotStarted(t *testing.T) {
	store := prefs.NewMemoryStore()
	p := New(&chanSource{}, &fakePusher{}, store, &staticResolver{}, Config{})
	p.Stop() // must not panic
}

func TestPublisher_NoDeliveryAfterStop(t *testing.T) {
	store := studentStore(t, models.SharingPreference{ShareWithClasses: true})
	source := &chanSource{fixes: make(chan models.Fix, 1)}
	pusher := &fakePusher{}
	p := New(source, pusher, store, &staticResolver{area: "Quad"}, Config{})

	if err := p.Start(context.Background(), RoomMode("CS101")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	p.Stop()
	p.Wait()

	source.fixes <- models.Fix{Lat: 1, Lon: 2, Timestamp: time.Now()}
	time.Sleep(200 * time.Millisecond)

	rooms, guardians := pusher.counts()
	if rooms != 0 || guardians != 0 {
		t.Errorf("Expected no deliveries after stop, got %d/%d", rooms, guardians)
	}

	on, _ := store.Publishing(context.Background())
	if on {
		t.Error("Expected publishing flag cleared after stop")
	}
}

func TestPublisher_DoubleStartRejected(t *testing.T) {
	store := studentStore(t, models.SharingPreference{ShareWithClasses: true})
	source := &chanSource{fixes: make(chan models.Fix)}
	p := New(source, &fakePusher{}, store, &staticResolver{area: "Quad"}, Config{})

	if err := p.Start(context.Background(), RoomMode("CS101")); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	if err := p.Start(context.Background(), RoomMode("CS101")); err == nil {
		t.Error("Expected second start to be rejected while running")
	}
}
