package models

import "time"

// LocationPush is the body of one outbound location delivery. The subject id is
// implicit in the bearer credential attached to the request.
type LocationPush struct {
	Area      string    `json:"area"`
	RoomID    string    `json:"roomId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
}

// SnapshotEntry is one element of the initial roster snapshot response
type SnapshotEntry struct {
	SubjectID string    `json:"subjectId"`
	Name      string    `json:"name"`
	Area      *string   `json:"area,omitempty"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Avatar    string    `json:"avatar,omitempty"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// Record converts a snapshot entry into a presence record
func (e *SnapshotEntry) Record() PresenceRecord {
	lat, lon, ts := e.Lat, e.Lon, e.Timestamp
	return PresenceRecord{
		Subject: TrackedSubject{
			ID:     e.SubjectID,
			Name:   e.Name,
			Role:   e.Role,
			Avatar: e.Avatar,
		},
		Area:      e.Area,
		Lat:       &lat,
		Lon:       &lon,
		Timestamp: &ts,
	}
}

// SnapshotResponse represents the REST snapshot API response format
type SnapshotResponse struct {
	Success bool            `json:"success"`
	Data    []SnapshotEntry `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}
