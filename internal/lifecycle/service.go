package lifecycle

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/bissquit/deploy-sentry/internal/diagnosis"
	"github.com/bissquit/deploy-sentry/internal/domain"
	"github.com/bissquit/deploy-sentry/internal/notify"
	"github.com/bissquit/deploy-sentry/internal/pkg/ctxlog"
)

const (
	// evidenceLimit is how many of the newest events feed the analyzer.
	evidenceLimit = 10

	// DefaultEventsLimit bounds the events returned with incident detail.
	DefaultEventsLimit = 50
)

// ApprovalManager is the slice of the approval service the lifecycle needs.
type ApprovalManager interface {
	Issue(ctx context.Context, incidentID string, action domain.ApprovalAction) (string, *domain.Approval, error)
	Redeem(ctx context.Context, incidentID, token string, action domain.ApprovalAction) (*domain.Approval, error)
	InvalidateForIncident(ctx context.Context, incidentID string) (int64, error)
}

// EmailSender delivers a rendered notification.
type EmailSender interface {
	Send(ctx context.Context, subject, body string) error
}

// EmailRenderer renders the incident email.
type EmailRenderer interface {
	Render(data notify.EmailData) (subject, body string, err error)
}

// DeployTrigger fires the redeploy hook.
type DeployTrigger interface {
	TriggerDeployHook(ctx context.Context) error
}

// IncidentDetail is an incident with its recent events and cached analysis.
type IncidentDetail struct {
	Incident *domain.Incident       `json:"incident"`
	Events   []domain.IncidentEvent `json:"events"`
	Analysis *domain.Analysis       `json:"analysis,omitempty"`
}

// Service drives incidents through their lifecycle: diagnosis, notification,
// approval and redeploy.
type Service struct {
	repo      Repository
	approvals ApprovalManager
	analyzer  diagnosis.Analyzer
	renderer  EmailRenderer
	sender    EmailSender
	deployer  DeployTrigger
	baseURL   string
}

func NewService(
	repo Repository,
	approvals ApprovalManager,
	analyzer diagnosis.Analyzer,
	renderer EmailRenderer,
	sender EmailSender,
	deployer DeployTrigger,
	baseURL string,
) *Service {
	return &Service{
		repo:      repo,
		approvals: approvals,
		analyzer:  analyzer,
		renderer:  renderer,
		sender:    sender,
		deployer:  deployer,
		baseURL:   baseURL,
	}
}

// ListIncidents returns incidents, newest last seen first.
func (s *Service) ListIncidents(ctx context.Context, filter ListFilter) ([]domain.Incident, error) {
	return s.repo.ListIncidents(ctx, filter)
}

// GetIncidentDetail returns an incident with its newest events and analysis.
func (s *Service) GetIncidentDetail(ctx context.Context, id string) (*IncidentDetail, error) {
	incident, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}

	events, err := s.repo.ListNewestEvents(ctx, id, DefaultEventsLimit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	detail := &IncidentDetail{Incident: incident, Events: events}
	if incident.AnalysisID != nil {
		analysis, err := s.repo.GetAnalysisBySignature(ctx, incident.ErrorSignature)
		if err != nil {
			return nil, fmt.Errorf("get analysis: %w", err)
		}
		detail.Analysis = analysis
	}
	return detail, nil
}

// HandleNewIncidents diagnoses and notifies every OPEN incident. A failure on
// one incident is logged and does not block the rest; the incident stays OPEN
// and is retried on the next agent run. Returns how many were notified.
func (s *Service) HandleNewIncidents(ctx context.Context) (int, error) {
	logger := ctxlog.FromContext(ctx)

	open := domain.IncidentStatusOpen
	incidents, err := s.repo.ListIncidents(ctx, ListFilter{Status: &open})
	if err != nil {
		return 0, fmt.Errorf("list open incidents: %w", err)
	}

	notified := 0
	for i := range incidents {
		if err := s.notifyIncident(ctx, &incidents[i]); err != nil {
			logger.Error("incident notification failed",
				"incident_id", incidents[i].ID,
				"error", err,
			)
			continue
		}
		notified++
	}
	return notified, nil
}

func (s *Service) notifyIncident(ctx context.Context, incident *domain.Incident) error {
	logger := ctxlog.FromContext(ctx)

	analysis := s.ensureAnalysis(ctx, incident)

	token, _, err := s.approvals.Issue(ctx, incident.ID, domain.ActionApprove)
	if err != nil {
		return fmt.Errorf("issue approval: %w", err)
	}

	subject, body, err := s.renderer.Render(notify.EmailData{
		Incident:   incident,
		Analysis:   analysis,
		ApproveURL: s.actionURL("approve", incident.ID, token),
		DismissURL: s.actionURL("dismiss", incident.ID, token),
	})
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	if err := s.sender.Send(ctx, subject, body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	moved, err := s.repo.TransitionStatus(ctx, incident.ID,
		[]domain.IncidentStatus{domain.IncidentStatusOpen}, domain.IncidentStatusNotified)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	if !moved {
		logger.Warn("incident moved out of OPEN before notification landed", "incident_id", incident.ID)
		return nil
	}

	logger.Info("incident notified", "incident_id", incident.ID, "severity", incident.Severity)
	return nil
}

// ensureAnalysis returns the cached analysis for the incident's signature,
// running the analyzer on a cache miss. Diagnosis is best effort: on failure
// the notification goes out without one.
func (s *Service) ensureAnalysis(ctx context.Context, incident *domain.Incident) *domain.Analysis {
	logger := ctxlog.FromContext(ctx)

	analysis, err := s.repo.GetAnalysisBySignature(ctx, incident.ErrorSignature)
	if err != nil {
		logger.Warn("analysis lookup failed", "incident_id", incident.ID, "error", err)
		return nil
	}

	if analysis == nil {
		events, err := s.repo.ListNewestEvents(ctx, incident.ID, evidenceLimit)
		if err != nil {
			logger.Warn("evidence lookup failed", "incident_id", incident.ID, "error", err)
			return nil
		}

		report, err := s.analyzer.Analyze(ctx, diagnosis.Request{
			ErrorSignature: incident.ErrorSignature,
			Title:          incident.Title,
			EvidenceLines:  evidenceLines(events),
		})
		if err != nil {
			logger.Warn("diagnosis failed", "incident_id", incident.ID, "provider", s.analyzer.Name(), "error", err)
			return nil
		}

		analysis, err = s.repo.UpsertAnalysis(ctx, &domain.Analysis{
			ErrorSignature:    incident.ErrorSignature,
			Summary:           report.Summary,
			LikelyCauses:      report.LikelyCauses,
			RecommendedAction: report.RecommendedAction,
			NextSteps:         report.NextSteps,
		})
		if err != nil {
			logger.Warn("analysis upsert failed", "incident_id", incident.ID, "error", err)
			return nil
		}
	}

	if incident.AnalysisID == nil {
		if err := s.repo.LinkAnalysis(ctx, incident.ID, analysis.ID); err != nil {
			logger.Warn("analysis link failed", "incident_id", incident.ID, "error", err)
		} else {
			incident.AnalysisID = &analysis.ID
		}
	}
	return analysis
}

// ApplyAction resolves an incident on behalf of an authenticated operator,
// without an emailed token. Outstanding approval tokens are burned so stale
// email links cannot re-resolve the incident.
func (s *Service) ApplyAction(ctx context.Context, incidentID string, action domain.ApprovalAction) (*domain.Incident, error) {
	if !action.IsValid() {
		return nil, fmt.Errorf("invalid action %q", action)
	}

	incident, err := s.repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	// APPROVED_REDEPLOY stays actionable here: it is where an incident lands
	// when the deploy hook fails after approval, and the operator retry path
	// runs through this endpoint.
	if incident.Status.IsTerminal() {
		return nil, ErrIncidentNotActionable
	}

	switch action {
	case domain.ActionApprove:
		return s.approveAndRedeploy(ctx, incidentID)
	default:
		return s.dismiss(ctx, incidentID)
	}
}

// ConfirmApprove redeems an emailed approve token and triggers the redeploy.
func (s *Service) ConfirmApprove(ctx context.Context, incidentID, token string) (*domain.Incident, error) {
	if _, err := s.repo.GetIncident(ctx, incidentID); err != nil {
		return nil, err
	}
	if _, err := s.approvals.Redeem(ctx, incidentID, token, domain.ActionApprove); err != nil {
		return nil, err
	}
	return s.approveAndRedeploy(ctx, incidentID)
}

// ConfirmDismiss redeems an emailed token as a dismissal. Any outstanding
// token for the incident works; the recorded action becomes dismiss.
func (s *Service) ConfirmDismiss(ctx context.Context, incidentID, token string) (*domain.Incident, error) {
	if _, err := s.repo.GetIncident(ctx, incidentID); err != nil {
		return nil, err
	}
	if _, err := s.approvals.Redeem(ctx, incidentID, token, domain.ActionDismiss); err != nil {
		return nil, err
	}
	return s.dismiss(ctx, incidentID)
}

// approveAndRedeploy moves the incident to APPROVED_REDEPLOY, fires the
// deploy hook and on success records REDEPLOY_TRIGGERED. A hook failure
// leaves the approval on record so the trigger can be retried.
func (s *Service) approveAndRedeploy(ctx context.Context, incidentID string) (*domain.Incident, error) {
	logger := ctxlog.FromContext(ctx)

	moved, err := s.repo.TransitionStatus(ctx, incidentID,
		[]domain.IncidentStatus{
			domain.IncidentStatusOpen,
			domain.IncidentStatusNotified,
			domain.IncidentStatusApprovedRedeploy,
		},
		domain.IncidentStatusApprovedRedeploy)
	if err != nil {
		return nil, fmt.Errorf("approve incident: %w", err)
	}
	if !moved {
		return nil, ErrIncidentNotActionable
	}

	s.burnOutstandingApprovals(ctx, incidentID)

	if err := s.deployer.TriggerDeployHook(ctx); err != nil {
		logger.Error("deploy hook failed", "incident_id", incidentID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRedeployFailed, err)
	}

	if _, err := s.repo.TransitionStatus(ctx, incidentID,
		[]domain.IncidentStatus{domain.IncidentStatusApprovedRedeploy},
		domain.IncidentStatusRedeployTriggered); err != nil {
		return nil, fmt.Errorf("record redeploy: %w", err)
	}

	logger.Info("redeploy triggered", "incident_id", incidentID)
	return s.repo.GetIncident(ctx, incidentID)
}

func (s *Service) dismiss(ctx context.Context, incidentID string) (*domain.Incident, error) {
	moved, err := s.repo.TransitionStatus(ctx, incidentID,
		[]domain.IncidentStatus{
			domain.IncidentStatusOpen,
			domain.IncidentStatusNotified,
			domain.IncidentStatusApprovedRedeploy,
		},
		domain.IncidentStatusDismissed)
	if err != nil {
		return nil, fmt.Errorf("dismiss incident: %w", err)
	}
	if !moved {
		return nil, ErrIncidentNotActionable
	}

	s.burnOutstandingApprovals(ctx, incidentID)

	ctxlog.FromContext(ctx).Info("incident dismissed", "incident_id", incidentID)
	return s.repo.GetIncident(ctx, incidentID)
}

func (s *Service) burnOutstandingApprovals(ctx context.Context, incidentID string) {
	n, err := s.approvals.InvalidateForIncident(ctx, incidentID)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("approval invalidation failed", "incident_id", incidentID, "error", err)
		return
	}
	if n > 0 {
		ctxlog.FromContext(ctx).Info("outstanding approvals invalidated", "incident_id", incidentID, "count", n)
	}
}

func (s *Service) actionURL(action, incidentID, token string) string {
	return fmt.Sprintf("%s/api/v1/%s?incidentId=%s&token=%s",
		s.baseURL, action, url.QueryEscape(incidentID), url.QueryEscape(token))
}

// evidenceLines formats events for the analyzer, newest first.
func evidenceLines(events []domain.IncidentEvent) []string {
	lines := make([]string, 0, len(events))
	for _, ev := range events {
		ts := time.UnixMilli(ev.TimestampMs).UTC().Format(time.RFC3339)
		lines = append(lines, fmt.Sprintf("[%s] %s", ts, ev.Message))
	}
	return lines
}
