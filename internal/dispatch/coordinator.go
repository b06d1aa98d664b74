package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thagencia/inquiry_svc/internal/inquiry"
	"github.com/thagencia/inquiry_svc/internal/mailer"
	"github.com/thagencia/inquiry_svc/internal/monitoring"
	"github.com/thagencia/inquiry_svc/internal/risk"
)

// ContactFormAction is the declared action label for this form, letting the
// scoring service distinguish it from other flows on the same site.
const ContactFormAction = "contact_form"

const (
	defaultDispatchTimeout = 10 * time.Second

	recipientClassBusiness  = "business"
	recipientClassSubmitter = "submitter"

	verdictResultAccepted = "accepted"
	verdictResultRejected = "rejected"
	verdictResultFallback = "fallback"

	messageSubmissionAccepted = "message sent successfully"
	messageInvalidSubmission  = "missing or malformed submission fields"
	messageMissingToken       = "missing verification token"
	messageVerificationFailed = "verification failed"
	messageDispatchFailed     = "failed to process the inquiry"
)

// OutcomeKind classifies the terminal state of one pipeline run.
type OutcomeKind string

const (
	OutcomeAccepted             OutcomeKind = "accepted"
	OutcomeInvalidInput         OutcomeKind = "invalid_input"
	OutcomeVerificationRejected OutcomeKind = "verification_rejected"
	OutcomeDispatchFailed       OutcomeKind = "dispatch_failed"
)

// Outcome is the single success-or-failure result of one submission.
// Message is safe to show to the caller; Detail carries internal diagnostics
// and must only be exposed outside production.
type Outcome struct {
	Kind    OutcomeKind
	Message string
	Detail  string
}

// Config captures the fixed addressing and timing of the dispatch step.
type Config struct {
	BusinessName    string
	BusinessInbox   string
	SenderAddress   string
	DispatchTimeout time.Duration
}

// Coordinator sequences validation, risk assessment, and notification
// dispatch into one request-scoped operation. Submissions are handled in
// complete isolation; nothing is persisted and nothing is retried.
type Coordinator struct {
	logger        *zap.Logger
	assessor      risk.Assessor
	mailer        mailer.Mailer
	metrics       *monitoring.Metrics
	configuration Config
}

type noopMailer struct{}

func (noopMailer) Send(ctx context.Context, envelope mailer.Envelope) error {
	return nil
}

func resolveMailer(transport mailer.Mailer) mailer.Mailer {
	if transport == nil {
		return noopMailer{}
	}
	return transport
}

type rejectingAssessor struct{}

func (rejectingAssessor) Assess(ctx context.Context, verificationToken string, expectedAction string) (risk.Verdict, error) {
	return risk.Verdict{}, errors.New("risk assessor not configured")
}

func resolveAssessor(assessor risk.Assessor) risk.Assessor {
	if assessor == nil {
		return rejectingAssessor{}
	}
	return assessor
}

// NewCoordinator constructs a Coordinator with the provided collaborators.
// The mailer may be nil, in which case dispatch becomes a no-op; a nil
// assessor rejects every submission.
func NewCoordinator(logger *zap.Logger, assessor risk.Assessor, transport mailer.Mailer, metrics *monitoring.Metrics, configuration Config) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if configuration.DispatchTimeout <= 0 {
		configuration.DispatchTimeout = defaultDispatchTimeout
	}
	configuration.BusinessName = strings.TrimSpace(configuration.BusinessName)
	configuration.BusinessInbox = strings.TrimSpace(configuration.BusinessInbox)
	configuration.SenderAddress = strings.TrimSpace(configuration.SenderAddress)
	return &Coordinator{
		logger:        logger,
		assessor:      resolveAssessor(assessor),
		mailer:        resolveMailer(transport),
		metrics:       metrics,
		configuration: configuration,
	}
}

// Process runs the pipeline for one submission: validate, confirm the
// verification token is present, assess risk, and on acceptance dispatch the
// business notification and the submitter acknowledgment concurrently. Any
// failure short-circuits and becomes the whole operation's outcome.
func (coordinator *Coordinator) Process(ctx context.Context, submission inquiry.Submission) Outcome {
	submissionID := uuid.NewString()
	normalized := submission.Normalized()

	if validationErr := inquiry.Validate(normalized); validationErr != nil {
		coordinator.logger.Info("submission_rejected",
			zap.String("submission_id", submissionID),
			zap.String("rule", string(validationErr.Kind)),
		)
		coordinator.metrics.ObserveSubmission(string(OutcomeInvalidInput))
		return Outcome{Kind: OutcomeInvalidInput, Message: messageInvalidSubmission, Detail: validationErr.Error()}
	}

	if normalized.VerificationToken == "" {
		coordinator.logger.Info("submission_missing_token", zap.String("submission_id", submissionID))
		coordinator.metrics.ObserveSubmission(string(OutcomeInvalidInput))
		return Outcome{Kind: OutcomeInvalidInput, Message: messageMissingToken}
	}

	verdict, assessErr := coordinator.assessor.Assess(ctx, normalized.VerificationToken, ContactFormAction)
	if assessErr != nil {
		coordinator.logger.Warn("risk_assessment_failed",
			zap.String("submission_id", submissionID),
			zap.Error(assessErr),
		)
		coordinator.metrics.ObserveVerdict(verdictResultRejected, 0)
		coordinator.metrics.ObserveSubmission(string(OutcomeVerificationRejected))
		return Outcome{Kind: OutcomeVerificationRejected, Message: messageVerificationFailed, Detail: assessErr.Error()}
	}

	if verdict.Fallback {
		coordinator.logger.Warn("risk_fallback_accepted", zap.String("submission_id", submissionID))
		coordinator.metrics.ObserveVerdict(verdictResultFallback, verdict.Score)
	} else {
		if !verdict.Accepted() {
			coordinator.logger.Info("risk_verdict_rejected",
				zap.String("submission_id", submissionID),
				zap.Bool("token_valid", verdict.TokenValid),
				zap.Float64("score", verdict.Score),
				zap.Bool("action_matched", verdict.ActionMatched),
			)
			coordinator.metrics.ObserveVerdict(verdictResultRejected, verdict.Score)
			coordinator.metrics.ObserveSubmission(string(OutcomeVerificationRejected))
			return Outcome{Kind: OutcomeVerificationRejected, Message: messageVerificationFailed}
		}
		coordinator.metrics.ObserveVerdict(verdictResultAccepted, verdict.Score)
	}

	businessEnvelope, businessErr := buildBusinessEnvelope(normalized, coordinator.configuration)
	if businessErr != nil {
		return coordinator.dispatchFailure(submissionID, businessErr)
	}
	acknowledgmentEnvelope, acknowledgmentErr := buildAcknowledgmentEnvelope(normalized, coordinator.configuration)
	if acknowledgmentErr != nil {
		return coordinator.dispatchFailure(submissionID, acknowledgmentErr)
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, coordinator.configuration.DispatchTimeout)
	defer cancel()

	group, groupCtx := errgroup.WithContext(dispatchCtx)
	group.Go(func() error {
		if sendErr := coordinator.mailer.Send(groupCtx, businessEnvelope); sendErr != nil {
			coordinator.metrics.ObserveEmailFailure()
			return sendErr
		}
		coordinator.metrics.ObserveEmailSent(recipientClassBusiness)
		return nil
	})
	group.Go(func() error {
		if sendErr := coordinator.mailer.Send(groupCtx, acknowledgmentEnvelope); sendErr != nil {
			coordinator.metrics.ObserveEmailFailure()
			return sendErr
		}
		coordinator.metrics.ObserveEmailSent(recipientClassSubmitter)
		return nil
	})

	if dispatchErr := group.Wait(); dispatchErr != nil {
		return coordinator.dispatchFailure(submissionID, dispatchErr)
	}

	coordinator.logger.Info("submission_dispatched",
		zap.String("submission_id", submissionID),
		zap.Float64("score", verdict.Score),
		zap.Bool("fallback", verdict.Fallback),
	)
	coordinator.metrics.ObserveSubmission(string(OutcomeAccepted))
	return Outcome{Kind: OutcomeAccepted, Message: messageSubmissionAccepted}
}

func (coordinator *Coordinator) dispatchFailure(submissionID string, cause error) Outcome {
	coordinator.logger.Warn("notification_dispatch_failed",
		zap.String("submission_id", submissionID),
		zap.Error(cause),
	)
	coordinator.metrics.ObserveSubmission(string(OutcomeDispatchFailed))
	return Outcome{Kind: OutcomeDispatchFailed, Message: messageDispatchFailed, Detail: cause.Error()}
}
