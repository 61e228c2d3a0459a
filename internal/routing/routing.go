package routing

import (
	"campuspresence/internal/models"
)

// DestinationKind represents the class of a fan-out target
type DestinationKind string

const (
	DestinationClass    DestinationKind = "class"
	DestinationGuardian DestinationKind = "guardian"
)

// Destination is one fan-out target for a location sample
type Destination struct {
	Kind   DestinationKind
	RoomID string // set for class destinations
}

// Decide returns the destinations for the next fan-out. It is a pure function
// of the subject's role, the persisted sharing preferences and the current
// room memberships; it performs no I/O. includeGuardian is true only in
// global publishing mode.
func Decide(role models.Role, prefs models.SharingPreference, rooms []string, includeGuardian bool) []Destination {
	if !role.CanPublish() {
		return nil
	}

	var destinations []Destination

	if prefs.ShareWithClasses {
		for _, room := range rooms {
			if room == "" {
				continue
			}
			destinations = append(destinations, Destination{Kind: DestinationClass, RoomID: room})
		}
	}

	if includeGuardian && prefs.ShareWithGuardian {
		destinations = append(destinations, Destination{Kind: DestinationGuardian})
	}

	return destinations
}
