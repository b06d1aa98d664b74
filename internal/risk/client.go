package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultEndpointBaseURL = "https://recaptchaenterprise.googleapis.com"
	defaultRequestTimeout  = 5 * time.Second

	maxAssessmentResponseBytes = 1 << 20

	logEventFallbackVerdict = "risk_fallback_verdict"
	logEventActionMismatch  = "risk_action_mismatch"
	logEventAssessment      = "risk_assessment"
)

var (
	// ErrMissingCredentials indicates the API key, project identifier, or
	// site key is not configured.
	ErrMissingCredentials = errors.New("risk assessment credentials are not configured")
	// ErrServiceUnreachable indicates a transport failure calling the
	// scoring service.
	ErrServiceUnreachable = errors.New("risk assessment service unreachable")
	// ErrServiceRejected indicates the scoring service responded with a
	// non-success status or an unreadable body.
	ErrServiceRejected = errors.New("risk assessment service rejected the request")
	// ErrTimeout indicates the single assessment attempt exceeded its
	// bounded deadline.
	ErrTimeout = errors.New("risk assessment request timed out")
)

// Assessor asks an external scoring service whether a verification token
// represents a legitimate human interaction for a declared action.
type Assessor interface {
	Assess(ctx context.Context, verificationToken string, expectedAction string) (Verdict, error)
}

// Config captures connection settings for the scoring service.
type Config struct {
	APIKey         string
	ProjectID      string
	SiteKey        string
	BaseURL        string
	RequestTimeout time.Duration

	// AllowInsecureFallback turns credential and transport failures into a
	// permissive pass-through verdict marked Fallback. It must stay off in
	// deployed environments.
	AllowInsecureFallback bool
}

// EnterpriseClient performs one synchronous assessment call per submission
// against a reCAPTCHA Enterprise compatible endpoint. No retries are made;
// any failure is final for that submission.
type EnterpriseClient struct {
	logger        *zap.Logger
	httpClient    *http.Client
	configuration Config
}

// NewEnterpriseClient creates a client for the scoring service.
func NewEnterpriseClient(logger *zap.Logger, configuration Config) *EnterpriseClient {
	configuration.BaseURL = strings.TrimRight(strings.TrimSpace(configuration.BaseURL), "/")
	if configuration.BaseURL == "" {
		configuration.BaseURL = defaultEndpointBaseURL
	}
	if configuration.RequestTimeout <= 0 {
		configuration.RequestTimeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnterpriseClient{
		logger:        logger,
		httpClient:    &http.Client{Timeout: configuration.RequestTimeout},
		configuration: configuration,
	}
}

type assessmentEvent struct {
	Token          string `json:"token"`
	SiteKey        string `json:"siteKey"`
	ExpectedAction string `json:"expectedAction,omitempty"`
}

type assessmentRequest struct {
	Event assessmentEvent `json:"event"`
}

type assessmentResponse struct {
	TokenProperties struct {
		Valid  bool   `json:"valid"`
		Action string `json:"action"`
	} `json:"tokenProperties"`
	RiskAnalysis struct {
		Score   float64  `json:"score"`
		Reasons []string `json:"reasons"`
	} `json:"riskAnalysis"`
}

// Assess sends the verification token and declared action to the scoring
// service and returns the resulting verdict.
func (client *EnterpriseClient) Assess(ctx context.Context, verificationToken string, expectedAction string) (Verdict, error) {
	if client.configuration.APIKey == "" || client.configuration.ProjectID == "" || client.configuration.SiteKey == "" {
		return client.fallbackVerdict(ErrMissingCredentials)
	}

	requestBody, encodeErr := json.Marshal(assessmentRequest{
		Event: assessmentEvent{
			Token:          verificationToken,
			SiteKey:        client.configuration.SiteKey,
			ExpectedAction: expectedAction,
		},
	})
	if encodeErr != nil {
		return Verdict{}, fmt.Errorf("encode assessment request: %w", encodeErr)
	}

	endpointQuery := url.Values{}
	endpointQuery.Set("key", client.configuration.APIKey)
	endpoint := fmt.Sprintf("%s/v1/projects/%s/assessments?%s",
		client.configuration.BaseURL,
		url.PathEscape(client.configuration.ProjectID),
		endpointQuery.Encode(),
	)

	callCtx, cancel := context.WithTimeout(ctx, client.configuration.RequestTimeout)
	defer cancel()

	request, requestErr := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if requestErr != nil {
		return Verdict{}, fmt.Errorf("build assessment request: %w", requestErr)
	}
	request.Header.Set("Content-Type", "application/json")

	response, doErr := client.httpClient.Do(request)
	if doErr != nil {
		if errors.Is(doErr, context.DeadlineExceeded) {
			return client.fallbackVerdict(fmt.Errorf("%w: %v", ErrTimeout, doErr))
		}
		return client.fallbackVerdict(fmt.Errorf("%w: %v", ErrServiceUnreachable, doErr))
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return client.fallbackVerdict(fmt.Errorf("%w: status %d", ErrServiceRejected, response.StatusCode))
	}

	var decoded assessmentResponse
	if decodeErr := json.NewDecoder(io.LimitReader(response.Body, maxAssessmentResponseBytes)).Decode(&decoded); decodeErr != nil {
		return client.fallbackVerdict(fmt.Errorf("%w: %v", ErrServiceRejected, decodeErr))
	}

	verdict := Verdict{
		TokenValid:    decoded.TokenProperties.Valid,
		Score:         decoded.RiskAnalysis.Score,
		ActionMatched: expectedAction == "" || decoded.TokenProperties.Action == expectedAction,
		Reasons:       decoded.RiskAnalysis.Reasons,
	}

	if !verdict.ActionMatched {
		client.logger.Warn(logEventActionMismatch,
			zap.String("expected_action", expectedAction),
			zap.String("recorded_action", decoded.TokenProperties.Action),
		)
	}

	client.logger.Debug(logEventAssessment,
		zap.Bool("token_valid", verdict.TokenValid),
		zap.Float64("score", verdict.Score),
		zap.Bool("action_matched", verdict.ActionMatched),
		zap.Strings("reasons", verdict.Reasons),
	)

	return verdict, nil
}

// fallbackVerdict converts a failure into a permissive pass-through verdict
// when insecure fallback is enabled, and into a hard failure otherwise. The
// pass-through is marked Fallback so it stays distinguishable from a real
// verdict in logs and telemetry.
func (client *EnterpriseClient) fallbackVerdict(cause error) (Verdict, error) {
	if !client.configuration.AllowInsecureFallback {
		return Verdict{}, cause
	}
	client.logger.Warn(logEventFallbackVerdict, zap.Error(cause))
	return Verdict{
		TokenValid:    true,
		Score:         1,
		ActionMatched: true,
		Reasons:       []string{"insecure_fallback"},
		Fallback:      true,
	}, nil
}
