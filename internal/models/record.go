package models

import (
	"time"
)

// PresenceRecord is the latest known state of one tracked subject within one room.
// At most one record exists per (room, subject id); a later update strictly
// replaces the earlier one.
type PresenceRecord struct {
	Subject   TrackedSubject `json:"subject"`
	Area      *string        `json:"area,omitempty"`
	Lat       *float64       `json:"lat,omitempty"`
	Lon       *float64       `json:"lon,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
}

// Validate validates the record data
func (r *PresenceRecord) Validate() error {
	return r.Subject.Validate()
}

// HasFix reports whether raw coordinates are present
func (r *PresenceRecord) HasFix() bool {
	return r.Lat != nil && r.Lon != nil
}

// HasArea reports whether a non-blank server-resolved area name is present
func (r *PresenceRecord) HasArea() bool {
	return r.Area != nil && *r.Area != ""
}

// Fix is one device location sample
type Fix struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Timestamp time.Time `json:"timestamp"`
}

// SharingPreference holds the per-destination-class opt-in booleans read by the
// routing policy on every sample
type SharingPreference struct {
	ShareWithClasses  bool `json:"shareWithClasses"`
	ShareWithGuardian bool `json:"shareWithGuardian"`
}
