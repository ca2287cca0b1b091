package domain

import "time"

// IncidentStatus represents the lifecycle state of an incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusOpen              IncidentStatus = "OPEN"
	IncidentStatusNotified          IncidentStatus = "NOTIFIED"
	IncidentStatusApprovedRedeploy  IncidentStatus = "APPROVED_REDEPLOY"
	IncidentStatusRedeployTriggered IncidentStatus = "REDEPLOY_TRIGGERED"
	IncidentStatusDismissed         IncidentStatus = "DISMISSED"
)

// IncidentSeverity represents the severity level of an incident.
type IncidentSeverity string

// Severity levels.
const (
	IncidentSeverityMinor    IncidentSeverity = "minor"
	IncidentSeverityMajor    IncidentSeverity = "major"
	IncidentSeverityCritical IncidentSeverity = "critical"
)

// Incident is a cluster of related error occurrences for one deployment,
// keyed by error signature.
type Incident struct {
	ID             string           `json:"id"`
	ErrorSignature string           `json:"error_signature"`
	Title          string           `json:"title"`
	Status         IncidentStatus   `json:"status"`
	Severity       IncidentSeverity `json:"severity"`
	DeploymentID   string           `json:"deployment_id"`
	RequestPath    *string          `json:"request_path"`
	EventCount     int              `json:"event_count"`
	FirstSeenAt    time.Time        `json:"first_seen_at"`
	LastSeenAt     time.Time        `json:"last_seen_at"`
	AnalysisID     *string          `json:"analysis_id"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// IncidentEvent is one redacted log occurrence attached to an incident.
// Events are immutable after creation and cascade-deleted with their incident.
type IncidentEvent struct {
	ID                 string    `json:"id"`
	IncidentID         string    `json:"incident_id"`
	RowID              string    `json:"row_id"`
	TimestampMs        int64     `json:"timestamp_ms"`
	Level              string    `json:"level"`
	Source             *string   `json:"source"`
	Message            string    `json:"message"`
	RequestMethod      *string   `json:"request_method"`
	RequestPath        *string   `json:"request_path"`
	ResponseStatusCode *int      `json:"response_status_code"`
	CreatedAt          time.Time `json:"created_at"`
}

// IsValid checks if the status is a known incident status.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusOpen, IncidentStatusNotified, IncidentStatusApprovedRedeploy,
		IncidentStatusRedeployTriggered, IncidentStatusDismissed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are expected.
func (s IncidentStatus) IsTerminal() bool {
	return s == IncidentStatusRedeployTriggered || s == IncidentStatusDismissed
}

// TokensMeaningful reports whether approval tokens for an incident in this
// status should still be honored.
func (s IncidentStatus) TokensMeaningful() bool {
	return s == IncidentStatusOpen || s == IncidentStatusNotified
}
