package approval

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bissquit/deploy-sentry/internal/domain"
	"github.com/bissquit/deploy-sentry/internal/pkg/metrics"
)

// DefaultTokenTTL is how long an issued approval token stays redeemable.
const DefaultTokenTTL = 24 * time.Hour

const tokenBytes = 32

// Service issues and redeems single-use approval tokens. Only the SHA-256
// digest of a token is ever persisted; the plaintext exists once, in the
// notification email.
type Service struct {
	repo     Repository
	tokenTTL time.Duration
	now      func() time.Time
}

func NewService(repo Repository, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Service{
		repo:     repo,
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// Issue creates an approval for the incident and returns the plaintext token
// alongside the stored record.
func (s *Service) Issue(ctx context.Context, incidentID string, action domain.ApprovalAction) (string, *domain.Approval, error) {
	if !action.IsValid() {
		return "", nil, fmt.Errorf("invalid approval action %q", action)
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(raw)

	approval := &domain.Approval{
		IncidentID:     incidentID,
		TokenHash:      hashToken(token),
		TokenExpiresAt: s.now().Add(s.tokenTTL),
		Action:         action,
	}
	if err := s.repo.CreateApproval(ctx, approval); err != nil {
		return "", nil, fmt.Errorf("create approval: %w", err)
	}

	metrics.ApprovalsIssued.WithLabelValues(string(action)).Inc()
	return token, approval, nil
}

// Redeem consumes the token for the given incident. An approve redemption
// requires the approval to have been issued for approve; a dismiss redemption
// accepts any outstanding approval and records dismiss as the final action.
// At most one redemption ever succeeds per token.
func (s *Service) Redeem(ctx context.Context, incidentID, token string, action domain.ApprovalAction) (*domain.Approval, error) {
	rec, err := s.repo.GetByTokenHash(ctx, incidentID, hashToken(token))
	if err != nil {
		return nil, fmt.Errorf("lookup approval: %w", err)
	}
	if rec == nil {
		metrics.ApprovalRedemptions.WithLabelValues("invalid").Inc()
		return nil, ErrTokenInvalid
	}
	if rec.UsedAt != nil {
		metrics.ApprovalRedemptions.WithLabelValues("already_used").Inc()
		return nil, ErrTokenAlreadyUsed
	}
	if s.now().After(rec.TokenExpiresAt) {
		metrics.ApprovalRedemptions.WithLabelValues("expired").Inc()
		return nil, ErrTokenExpired
	}
	if action == domain.ActionApprove && rec.Action != domain.ActionApprove {
		metrics.ApprovalRedemptions.WithLabelValues("invalid").Inc()
		return nil, ErrTokenInvalid
	}

	consumed, err := s.repo.ConsumeApproval(ctx, rec.ID, action)
	if err != nil {
		return nil, fmt.Errorf("consume approval: %w", err)
	}
	if !consumed {
		// Lost the race to a concurrent redeemer.
		metrics.ApprovalRedemptions.WithLabelValues("already_used").Inc()
		return nil, ErrTokenAlreadyUsed
	}

	metrics.ApprovalRedemptions.WithLabelValues("redeemed").Inc()
	now := s.now()
	rec.UsedAt = &now
	rec.Action = action
	return rec, nil
}

// InvalidateForIncident burns every outstanding token for the incident, used
// when an operator resolves it directly and emailed links must stop working.
func (s *Service) InvalidateForIncident(ctx context.Context, incidentID string) (int64, error) {
	n, err := s.repo.InvalidateForIncident(ctx, incidentID)
	if err != nil {
		return 0, fmt.Errorf("invalidate approvals: %w", err)
	}
	return n, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
