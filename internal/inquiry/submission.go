package inquiry

import (
	"fmt"
	"regexp"
	"strings"
)

// Submission represents one visitor-submitted contact request. A submission
// exists only for the duration of the request that carried it and is never
// persisted.
type Submission struct {
	Name              string
	Email             string
	Phone             string
	Company           string
	Message           string
	VerificationToken string
}

// ValidationErrorKind names the rule a submission violated.
type ValidationErrorKind string

const (
	ValidationErrorMissingName    ValidationErrorKind = "missing_name"
	ValidationErrorMissingEmail   ValidationErrorKind = "missing_email"
	ValidationErrorMissingMessage ValidationErrorKind = "missing_message"
	ValidationErrorMalformedEmail ValidationErrorKind = "malformed_email"
)

// ValidationError reports the first rule violated by a submission.
type ValidationError struct {
	Kind ValidationErrorKind
}

func (validationError *ValidationError) Error() string {
	return fmt.Sprintf("invalid submission: %s", validationError.Kind)
}

var emailExpression = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Normalized returns a copy of the submission with surrounding whitespace
// removed from every field.
func (submission Submission) Normalized() Submission {
	return Submission{
		Name:              strings.TrimSpace(submission.Name),
		Email:             strings.TrimSpace(submission.Email),
		Phone:             strings.TrimSpace(submission.Phone),
		Company:           strings.TrimSpace(submission.Company),
		Message:           strings.TrimSpace(submission.Message),
		VerificationToken: strings.TrimSpace(submission.VerificationToken),
	}
}

// Validate checks required-field presence in a fixed order and, only once all
// required fields are present, the email syntax. The ordering keeps error
// messages deterministic. A nil result means the submission is structurally
// valid.
func Validate(submission Submission) *ValidationError {
	if submission.Name == "" {
		return &ValidationError{Kind: ValidationErrorMissingName}
	}
	if submission.Email == "" {
		return &ValidationError{Kind: ValidationErrorMissingEmail}
	}
	if submission.Message == "" {
		return &ValidationError{Kind: ValidationErrorMissingMessage}
	}
	if !emailExpression.MatchString(submission.Email) {
		return &ValidationError{Kind: ValidationErrorMalformedEmail}
	}
	return nil
}
