package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"campuspresence/internal/auth"
	"campuspresence/internal/metrics"
	"campuspresence/internal/models"
)

// State represents the lifecycle state of one room connection
type State string

const (
	StateIdle             State = "idle"
	StateConnecting       State = "connecting"
	StateOpen             State = "open"
	StateReconnectPending State = "reconnect-pending"
	StateClosed           State = "closed"
)

// RosterSink receives the cache mutations decoded from the feed.
// Implemented by roster.Roster.
type RosterSink interface {
	Upsert(record models.PresenceRecord)
	Remove(subjectID string)
	SetActiveCount(n int)
	Clear()
}

// SnapshotFetcher provides the initial roster snapshot for a room.
// Implemented by api.Client.
type SnapshotFetcher interface {
	FetchRoomSnapshot(ctx context.Context, roomID string) ([]models.SnapshotEntry, error)
}

// Config holds feed manager configuration
type Config struct {
	ServerURL      string
	ReconnectDelay time.Duration // fixed delay between reconnect attempts, floored at 1s
	SnapshotCutoff time.Duration // max age of adopted snapshot entries
}

// Manager keeps exactly one transport connection open per room and translates
// inbound events into roster mutations. Each room is an independent
// connection with its own state machine; transport-level reconnection is
// owned here (the client library's own retry is disabled) so at most one
// reconnect is ever pending per room and closing a room cancels it
// atomically.
type Manager struct {
	serverURL      string
	reconnectDelay time.Duration
	snapshotCutoff time.Duration
	snapshots      SnapshotFetcher // optional

	mu    sync.Mutex
	rooms map[string]*roomConn
}

// roomConn is one logical subscription to a room's live feed
type roomConn struct {
	room      string
	cred      *auth.Credential
	sink      RosterSink
	state     State
	conn      *nats.Conn
	sub       *nats.Subscription
	reconnect *time.Timer // pending reconnect, at most one
	closed    bool        // explicit Close issued
}

// NewManager creates a feed manager. snapshots may be nil, in which case
// rooms open without an initial roster seed.
func NewManager(config Config, snapshots SnapshotFetcher) *Manager {
	delay := config.ReconnectDelay
	if delay < time.Second {
		delay = time.Second
	}
	cutoff := config.SnapshotCutoff
	if cutoff <= 0 {
		cutoff = 60 * time.Second
	}

	return &Manager{
		serverURL:      config.ServerURL,
		reconnectDelay: delay,
		snapshotCutoff: cutoff,
		snapshots:      snapshots,
		rooms:          make(map[string]*roomConn),
	}
}

// Open establishes the live feed for a room. It is idempotent: if the room is
// already open, connecting or awaiting reconnect, it is a no-op. An expired
// credential is refused synchronously rather than burned through a connect
// attempt that is guaranteed to be rejected.
func (m *Manager) Open(room string, cred *auth.Credential, sink RosterSink) error {
	if room == "" {
		return fmt.Errorf("room is required")
	}
	if cred.Expired(time.Now()) {
		return fmt.Errorf("credential for room %s is expired", room)
	}

	m.mu.Lock()
	if rc, exists := m.rooms[room]; exists {
		switch rc.state {
		case StateOpen, StateConnecting, StateReconnectPending:
			m.mu.Unlock()
			return nil
		}
	}
	rc := &roomConn{room: room, cred: cred, sink: sink, state: StateConnecting}
	m.rooms[room] = rc
	m.mu.Unlock()

	m.connect(rc)
	return nil
}

// Close tears down the room's transport with a normal closure and cancels any
// pending reconnect for it. The room's roster is cleared since its records
// are only meaningful while the feed is live.
func (m *Manager) Close(room string) {
	m.mu.Lock()
	rc, exists := m.rooms[room]
	if !exists {
		m.mu.Unlock()
		return
	}
	rc.closed = true
	if rc.reconnect != nil {
		rc.reconnect.Stop()
		rc.reconnect = nil
	}
	rc.state = StateIdle
	conn := rc.conn
	rc.conn = nil
	rc.sub = nil
	delete(m.rooms, room)
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	rc.sink.Clear()
	log.Printf("feed: closed room %s", room)
}

// CloseAll tears down every room, for shutdown
func (m *Manager) CloseAll() {
	m.mu.Lock()
	rooms := make([]string, 0, len(m.rooms))
	for room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.Unlock()

	for _, room := range rooms {
		m.Close(room)
	}
}

// State returns the connection state for a room
func (m *Manager) State(room string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rc, exists := m.rooms[room]; exists {
		return rc.state
	}
	return StateIdle
}

// connect dials the feed server for one room. On success it announces the
// join, seeds the roster from the snapshot endpoint and subscribes to the
// room subject. A transport failure schedules one reconnect; an
// authorization failure stops the loop for this room.
func (m *Manager) connect(rc *roomConn) {
	conn, err := nats.Connect(m.serverURL,
		nats.Token(rc.cred.Token()),
		nats.NoReconnect(),
		nats.ClosedHandler(func(c *nats.Conn) {
			m.onClosed(rc)
		}),
	)
	if err != nil {
		if errors.Is(err, nats.ErrAuthorization) {
			log.Printf("feed: room %s rejected credential, giving up: %v", rc.room, err)
			m.mu.Lock()
			rc.state = StateClosed
			m.mu.Unlock()
			return
		}
		log.Printf("feed: room %s connect failed: %v", rc.room, err)
		m.scheduleReconnect(rc)
		return
	}

	// A Close may have raced the dial
	m.mu.Lock()
	if rc.closed {
		m.mu.Unlock()
		conn.Close()
		return
	}
	rc.conn = conn
	m.mu.Unlock()

	if err := m.announceJoin(rc, conn); err != nil {
		log.Printf("feed: room %s join announcement failed: %v", rc.room, err)
	}

	m.seedSnapshot(rc)

	sub, err := conn.Subscribe(roomSubject(rc.room), func(msg *nats.Msg) {
		m.onEvent(rc, msg.Data)
	})
	if err != nil {
		log.Printf("feed: room %s subscribe failed: %v", rc.room, err)
		conn.Close()
		m.scheduleReconnect(rc)
		return
	}

	m.mu.Lock()
	rc.sub = sub
	rc.state = StateOpen
	m.mu.Unlock()
	log.Printf("feed: room %s open", rc.room)
}

// announceJoin publishes the join-room announcement for this subscription
func (m *Manager) announceJoin(rc *roomConn, conn *nats.Conn) error {
	join := models.JoinRoom{RoomID: rc.room, SubjectID: rc.cred.SubjectID}
	data, err := json.Marshal(join)
	if err != nil {
		return err
	}
	return conn.Publish(joinSubject(rc.room), data)
}

// seedSnapshot adopts the initial roster snapshot, skipping entries whose fix
// is older than the cutoff so minutes-old positions never render as current
func (m *Manager) seedSnapshot(rc *roomConn) {
	if m.snapshots == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entries, err := m.snapshots.FetchRoomSnapshot(ctx, rc.room)
	if err != nil {
		log.Printf("feed: room %s snapshot fetch failed: %v", rc.room, err)
		return
	}

	now := time.Now()
	adopted := 0
	for i := range entries {
		if now.Sub(entries[i].Timestamp) > m.snapshotCutoff {
			continue
		}
		rc.sink.Upsert(entries[i].Record())
		adopted++
	}
	log.Printf("feed: room %s snapshot seeded %d/%d entries", rc.room, adopted, len(entries))
}

// onEvent decodes and dispatches one inbound message. Malformed payloads are
// dropped with a warning; unknown kinds are ignored. Neither closes the
// connection.
func (m *Manager) onEvent(rc *roomConn, data []byte) {
	var event models.Event
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("feed: room %s dropped malformed payload: %v", rc.room, err)
		return
	}

	switch event.Kind {
	case models.EventLocationUpdate:
		if err := event.Validate(); err != nil {
			log.Printf("feed: room %s dropped invalid %s: %v", rc.room, event.Kind, err)
			return
		}
		rc.sink.Upsert(event.Record())
	case models.EventStopSharing:
		if err := event.Validate(); err != nil {
			log.Printf("feed: room %s dropped invalid %s: %v", rc.room, event.Kind, err)
			return
		}
		rc.sink.Remove(event.SubjectID)
	case models.EventActiveCount:
		// Aggregate occupancy, not tied to any individual record
		rc.sink.SetActiveCount(event.Count)
	default:
	}
}

// onClosed runs when the transport drops. Explicit closes were already
// transitioned by Close; anything else is abnormal and schedules exactly one
// reconnect.
func (m *Manager) onClosed(rc *roomConn) {
	m.mu.Lock()
	if rc.closed || rc.state != StateOpen {
		m.mu.Unlock()
		return
	}
	rc.conn = nil
	rc.sub = nil
	m.mu.Unlock()

	log.Printf("feed: room %s connection lost", rc.room)
	m.scheduleReconnect(rc)
}

// scheduleReconnect arms the reconnect timer for a room unless one is
// already pending or the room was closed
func (m *Manager) scheduleReconnect(rc *roomConn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rc.closed || rc.reconnect != nil {
		return
	}
	rc.state = StateReconnectPending
	metrics.ObserveReconnect()
	rc.reconnect = time.AfterFunc(m.reconnectDelay, func() {
		m.redial(rc)
	})
}

// redial fires when the reconnect delay elapses
func (m *Manager) redial(rc *roomConn) {
	m.mu.Lock()
	rc.reconnect = nil
	if rc.closed || rc.state != StateReconnectPending {
		m.mu.Unlock()
		return
	}
	rc.state = StateConnecting
	m.mu.Unlock()

	// An expired credential fails every attempt identically; stop here
	// instead of hammering the server.
	if rc.cred.Expired(time.Now()) {
		log.Printf("feed: room %s credential expired, stopping reconnect", rc.room)
		m.mu.Lock()
		rc.state = StateClosed
		m.mu.Unlock()
		return
	}

	m.connect(rc)
}

func roomSubject(room string) string {
	return "location.room." + room
}

func joinSubject(room string) string {
	return "location.room." + room + ".join"
}
