package roster

import (
	"context"
	"sync"
	"time"

	"campuspresence/internal/metrics"
	"campuspresence/internal/models"
)

// DefaultRecentWindow is how far back a fix may be and still render as recent
const DefaultRecentWindow = 2 * time.Minute

// UI-facing area text for records without a resolved area name. AreaPending is
// shown while a fallback resolution is in flight and must stay distinct from
// AreaUnavailable.
const (
	AreaUnavailable = "unavailable"
	AreaPending     = "locating"
)

// AreaResolver is the geocode fallback consulted when a record carries
// coordinates but no server-resolved area name
type AreaResolver interface {
	Resolve(ctx context.Context, lat, lon float64) (string, bool)
}

// Config holds roster configuration
type Config struct {
	RecentWindow time.Duration
	Resolver     AreaResolver // optional
}

// Roster is the authoritative in-memory presence roster for one room. Records
// keep their first-seen position across updates so a rendered list does not
// reshuffle. All mutation happens under one mutex; Snapshot copies under the
// same mutex so readers never observe a torn state.
type Roster struct {
	room         string
	recentWindow time.Duration
	resolver     AreaResolver

	mu          sync.Mutex
	order       []string
	records     map[string]models.PresenceRecord
	pending     map[string]bool
	activeCount int

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRoster creates an empty roster for the given room
func NewRoster(room string, config Config) *Roster {
	window := config.RecentWindow
	if window <= 0 {
		window = DefaultRecentWindow
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Roster{
		room:         room,
		recentWindow: window,
		resolver:     config.Resolver,
		records:      make(map[string]models.PresenceRecord),
		pending:      make(map[string]bool),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Room returns the room this roster belongs to
func (r *Roster) Room() string {
	return r.room
}

// Upsert replaces any existing record for the same subject id. New subjects
// are appended; existing subjects keep their position. A record with
// coordinates but no area name starts a fallback resolution.
func (r *Roster) Upsert(record models.PresenceRecord) {
	id := record.Subject.ID
	if id == "" {
		return
	}

	r.mu.Lock()
	if _, exists := r.records[id]; !exists {
		r.order = append(r.order, id)
	}
	r.records[id] = record

	needsFallback := r.resolver != nil && !record.HasArea() && record.HasFix() && !r.pending[id]
	if needsFallback {
		r.pending[id] = true
	}
	size := len(r.records)
	r.mu.Unlock()

	metrics.SetRosterSize(r.room, size)

	if needsFallback {
		go r.resolveFallback(id, *record.Lat, *record.Lon)
	}
}

// Remove deletes the record for the subject if present
func (r *Roster) Remove(subjectID string) {
	r.mu.Lock()
	if _, exists := r.records[subjectID]; exists {
		delete(r.records, subjectID)
		delete(r.pending, subjectID)
		for i, id := range r.order {
			if id == subjectID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	size := len(r.records)
	r.mu.Unlock()

	metrics.SetRosterSize(r.room, size)
}

// Snapshot returns the current records in first-seen order. The returned
// slice is a copy and safe to hold across later mutations.
func (r *Roster) Snapshot() []models.PresenceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.PresenceRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id])
	}
	return out
}

// Len returns the number of records currently held
func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// SetActiveCount stores the aggregate room occupancy reported by the feed.
// It is room-level metadata, never merged into individual records.
func (r *Roster) SetActiveCount(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeCount = n
}

// ActiveCount returns the last reported aggregate occupancy
func (r *Roster) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeCount
}

// Clear drops all records and pending resolutions, for room teardown
func (r *Roster) Clear() {
	r.mu.Lock()
	r.order = nil
	r.records = make(map[string]models.PresenceRecord)
	r.pending = make(map[string]bool)
	r.mu.Unlock()

	metrics.SetRosterSize(r.room, 0)
}

// Close cancels any in-flight fallback resolutions
func (r *Roster) Close() {
	r.cancel()
}

// Recent classifies the record against the configured window
func (r *Roster) Recent(record models.PresenceRecord, now time.Time) bool {
	return IsRecent(record, now, r.recentWindow)
}

// IsRecent reports whether a record's fix falls within the recent window.
// The boundary is inclusive: a fix exactly window-old is still recent. A
// record that was never observed is never recent. Recency only controls
// display, never eviction.
func IsRecent(record models.PresenceRecord, now time.Time, window time.Duration) bool {
	if record.Timestamp == nil {
		return false
	}
	return now.Sub(*record.Timestamp) <= window
}

// DisplayArea returns the UI-facing area text for a record
func (r *Roster) DisplayArea(record models.PresenceRecord) string {
	if record.Timestamp == nil {
		return AreaUnavailable
	}
	if record.HasArea() {
		return *record.Area
	}

	r.mu.Lock()
	pending := r.pending[record.Subject.ID]
	r.mu.Unlock()
	if pending {
		return AreaPending
	}
	return AreaUnavailable
}

// resolveFallback resolves a missing area name through the geocode cache and
// folds the result back in if the record is still present and still blank
func (r *Roster) resolveFallback(subjectID string, lat, lon float64) {
	ctx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
	defer cancel()

	area, ok := r.resolver.Resolve(ctx, lat, lon)

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pending, subjectID)
	record, exists := r.records[subjectID]
	if !exists || record.HasArea() || !ok {
		return
	}
	record.Area = &area
	r.records[subjectID] = record
}
