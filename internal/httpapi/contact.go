package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thagencia/inquiry_svc/internal/dispatch"
	"github.com/thagencia/inquiry_svc/internal/inquiry"
)

// ContactHandlers serves the public contact-form endpoint.
type ContactHandlers struct {
	logger             *zap.Logger
	coordinator        *dispatch.Coordinator
	exposeErrorDetails bool
}

// NewContactHandlers constructs a ContactHandlers instance. When
// exposeErrorDetails is true, internal failure details are included in 500
// responses; keep it off in production.
func NewContactHandlers(logger *zap.Logger, coordinator *dispatch.Coordinator, exposeErrorDetails bool) *ContactHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContactHandlers{
		logger:             logger,
		coordinator:        coordinator,
		exposeErrorDetails: exposeErrorDetails,
	}
}

type contactRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Company        string `json:"company"`
	Message        string `json:"message"`
	RecaptchaToken string `json:"recaptchaToken"`
}

// CreateInquiry accepts a contact-form submission and runs it through the
// verification and dispatch pipeline.
func (handlers *ContactHandlers) CreateInquiry(context *gin.Context) {
	var payload contactRequest
	if bindErr := context.BindJSON(&payload); bindErr != nil {
		context.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}

	submission := inquiry.Submission{
		Name:              payload.Name,
		Email:             payload.Email,
		Phone:             payload.Phone,
		Company:           payload.Company,
		Message:           payload.Message,
		VerificationToken: payload.RecaptchaToken,
	}

	outcome := handlers.coordinator.Process(context.Request.Context(), submission)
	switch outcome.Kind {
	case dispatch.OutcomeAccepted:
		context.JSON(http.StatusOK, gin.H{"message": outcome.Message})
	case dispatch.OutcomeInvalidInput:
		context.JSON(http.StatusBadRequest, gin.H{"error": outcome.Message})
	case dispatch.OutcomeVerificationRejected:
		context.JSON(http.StatusForbidden, gin.H{"error": outcome.Message})
	default:
		responseBody := gin.H{"error": outcome.Message}
		if handlers.exposeErrorDetails && outcome.Detail != "" {
			responseBody["details"] = outcome.Detail
		}
		context.JSON(http.StatusInternalServerError, responseBody)
	}
}
