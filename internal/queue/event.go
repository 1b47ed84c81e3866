// Package queue defines message payloads exchanged over the message broker
// and the consumer that writes them to the audit log.
package queue

// PatientEventsQueue is the durable queue carrying record lifecycle events.
const PatientEventsQueue = "patient.events"

// Event types published for patient records.
const (
    PatientCreated = "patient.created"
    PatientUpdated = "patient.updated"
    PatientDeleted = "patient.deleted"
)

// PatientEvent is published after a record mutation touches a document.
// It carries identifiers only so the audit trail holds no clinical data.
type PatientEvent struct {
    Type       string `json:"type"`
    RecordID   string `json:"record_id"`
    Actor      string `json:"actor"`
    OccurredAt string `json:"occurred_at"`
}
