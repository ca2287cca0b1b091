package domain

import "time"

// ApprovalAction is the action a token authorizes.
type ApprovalAction string

// Approval actions.
const (
	ActionApprove ApprovalAction = "approve"
	ActionDismiss ApprovalAction = "dismiss"
)

// Approval is a single-use, time-limited authorization for one action on one
// incident. Only the SHA-256 digest of the bearer token is persisted; the raw
// token is returned to the caller exactly once at issue time.
type Approval struct {
	ID             string         `json:"id"`
	IncidentID     string         `json:"incident_id"`
	TokenHash      string         `json:"-"`
	TokenExpiresAt time.Time      `json:"token_expires_at"`
	UsedAt         *time.Time     `json:"used_at"`
	Action         ApprovalAction `json:"action"`
	CreatedAt      time.Time      `json:"created_at"`
}

// IsValid checks if the action is a known approval action.
func (a ApprovalAction) IsValid() bool {
	return a == ActionApprove || a == ActionDismiss
}

// Inert reports whether the approval can no longer be redeemed at the given
// instant. A used approval is permanently inert regardless of expiry.
func (a *Approval) Inert(now time.Time) bool {
	return a.UsedAt != nil || now.After(a.TokenExpiresAt)
}
