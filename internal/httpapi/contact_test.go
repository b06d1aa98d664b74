package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thagencia/inquiry_svc/internal/dispatch"
	"github.com/thagencia/inquiry_svc/internal/httpapi"
	"github.com/thagencia/inquiry_svc/internal/mailer"
	"github.com/thagencia/inquiry_svc/internal/monitoring"
	"github.com/thagencia/inquiry_svc/internal/risk"
)

type scriptedAssessor struct {
	verdict   risk.Verdict
	assessErr error
	callCount int
}

func (assessor *scriptedAssessor) Assess(ctx context.Context, verificationToken string, expectedAction string) (risk.Verdict, error) {
	assessor.callCount++
	return assessor.verdict, assessor.assessErr
}

type recordingMailer struct {
	mutex         sync.Mutex
	envelopes     []mailer.Envelope
	failRecipient string
}

func (transport *recordingMailer) Send(ctx context.Context, envelope mailer.Envelope) error {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()
	transport.envelopes = append(transport.envelopes, envelope)
	if transport.failRecipient != "" && envelope.Recipient == transport.failRecipient {
		return errors.New("transport unavailable")
	}
	return nil
}

func (transport *recordingMailer) sentCount() int {
	transport.mutex.Lock()
	defer transport.mutex.Unlock()
	return len(transport.envelopes)
}

type apiHarness struct {
	router    *gin.Engine
	assessor  *scriptedAssessor
	transport *recordingMailer
}

type harnessOptions struct {
	verdict            risk.Verdict
	assessErr          error
	failRecipient      string
	exposeErrorDetails bool
}

func buildAPIHarness(testingT *testing.T, options harnessOptions) apiHarness {
	testingT.Helper()

	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	assessor := &scriptedAssessor{verdict: options.verdict, assessErr: options.assessErr}
	transport := &recordingMailer{failRecipient: options.failRecipient}
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	coordinator := dispatch.NewCoordinator(logger, assessor, transport, metrics, dispatch.Config{
		BusinessName:  "THagencia",
		BusinessInbox: "ventas@example.com",
		SenderAddress: "noreply@example.com",
	})

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	router.Use(httpapi.RequestLogger(logger))

	contactHandlers := httpapi.NewContactHandlers(logger, coordinator, options.exposeErrorDetails)
	router.POST("/api/contact", contactHandlers.CreateInquiry)

	return apiHarness{
		router:    router,
		assessor:  assessor,
		transport: transport,
	}
}

func performJSONRequest(testingT *testing.T, router *gin.Engine, method string, path string, body any) *httptest.ResponseRecorder {
	testingT.Helper()

	var requestBody io.Reader
	if body != nil {
		encoded, encodeErr := json.Marshal(body)
		require.NoError(testingT, encodeErr)
		requestBody = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, requestBody)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func decodeResponseBody(testingT *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	testingT.Helper()

	var decoded map[string]any
	require.NoError(testingT, json.Unmarshal(recorder.Body.Bytes(), &decoded))
	return decoded
}

func acceptedVerdict() risk.Verdict {
	return risk.Verdict{TokenValid: true, Score: 0.9, ActionMatched: true}
}

func validPayload() map[string]any {
	return map[string]any{
		"name":           "Ada Lovelace",
		"email":          "ada@example.com",
		"phone":          "+1 555 0100",
		"company":        "Analytical Engines",
		"message":        "I would like a quote for a new website.",
		"recaptchaToken": "token-123",
	}
}

func TestCreateInquiryFullSuccess(t *testing.T) {
	api := buildAPIHarness(t, harnessOptions{verdict: acceptedVerdict()})

	response := performJSONRequest(t, api.router, http.MethodPost, "/api/contact", validPayload())
	require.Equal(t, http.StatusOK, response.Code)
	responseBody := decodeResponseBody(t, response)
	require.NotEmpty(t, responseBody["message"])
	require.Equal(t, 1, api.assessor.callCount)
	require.Equal(t, 2, api.transport.sentCount())
}

func TestCreateInquiryMissingRequiredFields(t *testing.T) {
	testCases := []string{"name", "email", "message"}
	for _, missingField := range testCases {
		missingField := missingField
		t.Run("missing "+missingField, func(testingT *testing.T) {
			api := buildAPIHarness(testingT, harnessOptions{verdict: acceptedVerdict()})

			payload := validPayload()
			delete(payload, missingField)

			response := performJSONRequest(testingT, api.router, http.MethodPost, "/api/contact", payload)
			require.Equal(testingT, http.StatusBadRequest, response.Code)
			responseBody := decodeResponseBody(testingT, response)
			require.NotEmpty(testingT, responseBody["error"])
			require.Zero(testingT, api.assessor.callCount)
			require.Zero(testingT, api.transport.sentCount())
		})
	}
}

func TestCreateInquiryMalformedEmail(t *testing.T) {
	api := buildAPIHarness(t, harnessOptions{verdict: acceptedVerdict()})

	payload := validPayload()
	payload["email"] = "not an email"

	response := performJSONRequest(t, api.router, http.MethodPost, "/api/contact", payload)
	require.Equal(t, http.StatusBadRequest, response.Code)
	require.Zero(t, api.assessor.callCount)
}

func TestCreateInquiryMissingToken(t *testing.T) {
	api := buildAPIHarness(t, harnessOptions{verdict: acceptedVerdict()})

	payload := validPayload()
	delete(payload, "recaptchaToken")

	response := performJSONRequest(t, api.router, http.MethodPost, "/api/contact", payload)
	require.Equal(t, http.StatusBadRequest, response.Code)
	responseBody := decodeResponseBody(t, response)
	require.Equal(t, "missing verification token", responseBody["error"])
	require.Zero(t, api.assessor.callCount)
}

func TestCreateInquiryVerificationRejected(t *testing.T) {
	api := buildAPIHarness(t, harnessOptions{
		verdict: risk.Verdict{TokenValid: true, Score: 0.49, ActionMatched: true},
	})

	response := performJSONRequest(t, api.router, http.MethodPost, "/api/contact", validPayload())
	require.Equal(t, http.StatusForbidden, response.Code)
	responseBody := decodeResponseBody(t, response)
	require.Equal(t, "verification failed", responseBody["error"])
	require.Zero(t, api.transport.sentCount())
}

func TestCreateInquiryScoreAtThresholdAccepted(t *testing.T) {
	api := buildAPIHarness(t, harnessOptions{
		verdict: risk.Verdict{TokenValid: true, Score: 0.5, ActionMatched: true},
	})

	response := performJSONRequest(t, api.router, http.MethodPost, "/api/contact", validPayload())
	require.Equal(t, http.StatusOK, response.Code)
	require.Equal(t, 2, api.transport.sentCount())
}

func TestCreateInquiryAssessorUnreachableRejected(t *testing.T) {
	api := buildAPIHarness(t, harnessOptions{assessErr: risk.ErrServiceUnreachable})

	response := performJSONRequest(t, api.router, http.MethodPost, "/api/contact", validPayload())
	require.Equal(t, http.StatusForbidden, response.Code)
	require.Zero(t, api.transport.sentCount())
}

func TestCreateInquiryDispatchFailureHidesDetailsByDefault(t *testing.T) {
	api := buildAPIHarness(t, harnessOptions{
		verdict:       acceptedVerdict(),
		failRecipient: "ada@example.com",
	})

	response := performJSONRequest(t, api.router, http.MethodPost, "/api/contact", validPayload())
	require.Equal(t, http.StatusInternalServerError, response.Code)
	responseBody := decodeResponseBody(t, response)
	require.NotEmpty(t, responseBody["error"])
	require.NotContains(t, responseBody, "details")
}

func TestCreateInquiryDispatchFailureExposesDetailsWhenEnabled(t *testing.T) {
	api := buildAPIHarness(t, harnessOptions{
		verdict:            acceptedVerdict(),
		failRecipient:      "ada@example.com",
		exposeErrorDetails: true,
	})

	response := performJSONRequest(t, api.router, http.MethodPost, "/api/contact", validPayload())
	require.Equal(t, http.StatusInternalServerError, response.Code)
	responseBody := decodeResponseBody(t, response)
	require.Contains(t, responseBody["details"], "transport unavailable")
}

func TestCreateInquiryRejectsMalformedJSON(t *testing.T) {
	api := buildAPIHarness(t, harnessOptions{verdict: acceptedVerdict()})

	request := httptest.NewRequest(http.MethodPost, "/api/contact", bytes.NewReader([]byte("{not json")))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	api.router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Zero(t, api.assessor.callCount)
}

func TestCreateInquiryIdenticalPayloadsRunIndependently(t *testing.T) {
	api := buildAPIHarness(t, harnessOptions{verdict: acceptedVerdict()})

	first := performJSONRequest(t, api.router, http.MethodPost, "/api/contact", validPayload())
	second := performJSONRequest(t, api.router, http.MethodPost, "/api/contact", validPayload())
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, 2, api.assessor.callCount)
	require.Equal(t, 4, api.transport.sentCount())
}
