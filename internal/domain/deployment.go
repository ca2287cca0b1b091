package domain

import "time"

// Deployment identifies one release target registered with the engine.
// There is at most one row per provider deployment id (upsert semantics).
type Deployment struct {
	ID string `json:"id"`
	// ExternalID is the deployment id assigned by the deployment provider.
	ExternalID string `json:"external_id"`
	Target     string `json:"target"`
	// LastProcessedTimestampMs is the high-water mark for log ingestion:
	// logs at or below it are dropped as already processed.
	LastProcessedTimestampMs int64      `json:"last_processed_timestamp_ms"`
	LastPolledAt             *time.Time `json:"last_polled_at"`
	CreatedAt                time.Time  `json:"created_at"`
}

// LogRecord is one raw log line from the deployment provider. It is consumed
// once by ingestion and never persisted as-is; only the redacted form of its
// message ends up in an IncidentEvent.
type LogRecord struct {
	RowID              string
	TimestampMs        int64
	Level              string
	Message            string
	Source             *string
	RequestMethod      *string
	RequestPath        *string
	ResponseStatusCode *int
}
