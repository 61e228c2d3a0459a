package models

import "errors"

// Role represents the campus role of a tracked subject
type Role string

const (
	RoleStudent   Role = "student"
	RoleProfessor Role = "professor"
	RoleObserver  Role = "observer"
)

// IsValid checks if the role is valid
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleProfessor, RoleObserver:
		return true
	default:
		return false
	}
}

// CanPublish reports whether a subject with this role may publish location fixes.
// Observers only watch rosters and must never publish.
func (r Role) CanPublish() bool {
	return r == RoleStudent || r == RoleProfessor
}

// TrackedSubject represents a person being located
type TrackedSubject struct {
	ID     string `json:"subjectId"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	Avatar string `json:"avatar,omitempty"`
}

// Validate validates the subject data
func (s *TrackedSubject) Validate() error {
	if s.ID == "" {
		return errors.New("subjectId is required")
	}
	if !s.Role.IsValid() {
		return errors.New("invalid role")
	}
	return nil
}
