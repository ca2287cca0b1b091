package lifecycle

import "errors"

// Lifecycle errors.
var (
	ErrIncidentNotFound = errors.New("incident not found")

	// ErrIncidentNotActionable means the incident is already past the point
	// where an approve or dismiss makes sense.
	ErrIncidentNotActionable = errors.New("incident not actionable")

	// ErrRedeployFailed means the incident was approved but the deploy hook
	// did not accept the trigger. The incident stays in APPROVED_REDEPLOY.
	ErrRedeployFailed = errors.New("redeploy trigger failed")
)
