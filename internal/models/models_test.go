package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRole_IsValid(t *testing.T) {
	valid := []Role{RoleStudent, RoleProfessor, RoleObserver}
	for _, r := range valid {
		if !r.IsValid() {
			t.Errorf("Expected role %s to be valid", r)
		}
	}

	invalid := []Role{"", "admin", "STUDENT"}
	for _, r := range invalid {
		if r.IsValid() {
			t.Errorf("Expected role %s to be invalid", r)
		}
	}
}

func TestRole_CanPublish(t *testing.T) {
	if !RoleStudent.CanPublish() {
		t.Error("Expected student to be allowed to publish")
	}
	if !RoleProfessor.CanPublish() {
		t.Error("Expected professor to be allowed to publish")
	}
	if RoleObserver.CanPublish() {
		t.Error("Expected observer to be forbidden from publishing")
	}
}

func TestTrackedSubject_Validate(t *testing.T) {
	subject := TrackedSubject{ID: "42", Name: "Ada", Role: RoleStudent}
	if err := subject.Validate(); err != nil {
		t.Errorf("Expected valid subject, got error: %v", err)
	}

	missing := TrackedSubject{Name: "Ada", Role: RoleStudent}
	if err := missing.Validate(); err == nil {
		t.Error("Expected error for missing subject id")
	}

	badRole := TrackedSubject{ID: "42", Role: Role("ghost")}
	if err := badRole.Validate(); err == nil {
		t.Error("Expected error for invalid role")
	}
}

func TestEvent_Validate(t *testing.T) {
	update := Event{Kind: EventLocationUpdate, SubjectID: "42", Role: RoleStudent}
	if err := update.Validate(); err != nil {
		t.Errorf("Expected valid location-update, got error: %v", err)
	}

	noSubject := Event{Kind: EventLocationUpdate, Role: RoleStudent}
	if err := noSubject.Validate(); err == nil {
		t.Error("Expected error for location-update without subjectId")
	}

	stop := Event{Kind: EventStopSharing, SubjectID: "42"}
	if err := stop.Validate(); err != nil {
		t.Errorf("Expected valid stop-sharing, got error: %v", err)
	}

	count := Event{Kind: EventActiveCount, Count: 7}
	if err := count.Validate(); err != nil {
		t.Errorf("Expected valid active-count, got error: %v", err)
	}

	negative := Event{Kind: EventActiveCount, Count: -1}
	if err := negative.Validate(); err == nil {
		t.Error("Expected error for negative active count")
	}

	unknown := Event{Kind: EventKind("typing")}
	if err := unknown.Validate(); err == nil {
		t.Error("Expected error for unknown event kind")
	}
}

func TestEvent_Record(t *testing.T) {
	now := time.Now().UTC()
	area := "Library"
	lat, lon := 48.7889, 2.3638

	event := Event{
		Kind:      EventLocationUpdate,
		SubjectID: "42",
		Name:      "Ada",
		Area:      &area,
		Lat:       &lat,
		Lon:       &lon,
		Role:      RoleStudent,
		Timestamp: &now,
	}

	record := event.Record()
	if record.Subject.ID != "42" {
		t.Errorf("Expected subject id 42, got %s", record.Subject.ID)
	}
	if !record.HasArea() || *record.Area != "Library" {
		t.Error("Expected area Library on converted record")
	}
	if !record.HasFix() {
		t.Error("Expected coordinates on converted record")
	}
	if record.Timestamp == nil || !record.Timestamp.Equal(now) {
		t.Error("Expected timestamp to carry over")
	}
}

func TestEvent_DecodeWireFormat(t *testing.T) {
	raw := `{"kind":"location-update","subjectId":"42","name":"Ada","area":"Library","lat":48.7889,"lon":2.3638,"role":"student","timestamp":"2026-08-30T10:00:00Z"}`

	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if event.Kind != EventLocationUpdate {
		t.Errorf("Expected kind location-update, got %s", event.Kind)
	}
	if event.Area == nil || *event.Area != "Library" {
		t.Error("Expected area Library")
	}
	if err := event.Validate(); err != nil {
		t.Errorf("Expected decoded event to validate, got: %v", err)
	}
}

func TestPresenceRecord_HasAreaAndFix(t *testing.T) {
	record := PresenceRecord{Subject: TrackedSubject{ID: "42", Role: RoleStudent}}
	if record.HasArea() {
		t.Error("Expected no area on empty record")
	}
	if record.HasFix() {
		t.Error("Expected no fix on empty record")
	}

	blank := ""
	record.Area = &blank
	if record.HasArea() {
		t.Error("Expected blank area to count as absent")
	}

	lat, lon := 1.0, 2.0
	record.Lat, record.Lon = &lat, &lon
	if !record.HasFix() {
		t.Error("Expected fix once both coordinates are set")
	}
}

func TestSnapshotEntry_Record(t *testing.T) {
	now := time.Now().UTC()
	entry := SnapshotEntry{
		SubjectID: "7",
		Name:      "Grace",
		Lat:       48.8,
		Lon:       2.36,
		Role:      RoleProfessor,
		Timestamp: now,
	}

	record := entry.Record()
	if record.Subject.Role != RoleProfessor {
		t.Errorf("Expected professor role, got %s", record.Subject.Role)
	}
	if !record.HasFix() {
		t.Error("Expected coordinates on snapshot record")
	}
	if record.HasArea() {
		t.Error("Expected no area when snapshot entry omits it")
	}
}
