package models

import (
	"errors"
	"time"
)

// EventKind represents the kind of an inbound feed event
type EventKind string

const (
	EventLocationUpdate EventKind = "location-update"
	EventStopSharing    EventKind = "stop-sharing"
	EventActiveCount    EventKind = "active-count"
)

// Event is the envelope for one inbound feed message. Fields are populated
// according to Kind; unknown kinds are ignored by the feed client.
type Event struct {
	Kind      EventKind  `json:"kind"`
	SubjectID string     `json:"subjectId,omitempty"`
	Name      string     `json:"name,omitempty"`
	Area      *string    `json:"area,omitempty"`
	Lat       *float64   `json:"lat,omitempty"`
	Lon       *float64   `json:"lon,omitempty"`
	Avatar    string     `json:"avatar,omitempty"`
	Role      Role       `json:"role,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Count     int        `json:"count,omitempty"`
}

// Validate validates the event for its kind
func (e *Event) Validate() error {
	switch e.Kind {
	case EventLocationUpdate:
		if e.SubjectID == "" {
			return errors.New("subjectId is required")
		}
		if !e.Role.IsValid() {
			return errors.New("invalid role")
		}
	case EventStopSharing:
		if e.SubjectID == "" {
			return errors.New("subjectId is required")
		}
	case EventActiveCount:
		if e.Count < 0 {
			return errors.New("count must be non-negative")
		}
	default:
		return errors.New("unknown event kind")
	}
	return nil
}

// Record converts a location-update event into a presence record
func (e *Event) Record() PresenceRecord {
	return PresenceRecord{
		Subject: TrackedSubject{
			ID:     e.SubjectID,
			Name:   e.Name,
			Role:   e.Role,
			Avatar: e.Avatar,
		},
		Area:      e.Area,
		Lat:       e.Lat,
		Lon:       e.Lon,
		Timestamp: e.Timestamp,
	}
}

// JoinRoom is the client-to-server announcement sent after a room connection opens
type JoinRoom struct {
	RoomID    string `json:"roomId"`
	SubjectID string `json:"subjectId,omitempty"`
}
