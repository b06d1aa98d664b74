package dispatch

import (
	_ "embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/thagencia/inquiry_svc/internal/inquiry"
	"github.com/thagencia/inquiry_svc/internal/mailer"
)

//go:embed templates/business_notification.tmpl
var businessNotificationTemplateHTML string

//go:embed templates/acknowledgment.tmpl
var acknowledgmentTemplateHTML string

var (
	businessNotificationTemplate = template.Must(template.New("business_notification").Parse(businessNotificationTemplateHTML))
	acknowledgmentTemplate       = template.Must(template.New("acknowledgment").Parse(acknowledgmentTemplateHTML))
)

// notificationData carries the submission fields into the email templates.
// Rendering goes through html/template so every user-supplied value is
// escaped before it reaches an HTML body.
type notificationData struct {
	Name          string
	Email         string
	Phone         string
	Company       string
	Message       string
	BusinessName  string
	BusinessInbox string
	Year          int
}

func newNotificationData(submission inquiry.Submission, configuration Config) notificationData {
	return notificationData{
		Name:          submission.Name,
		Email:         submission.Email,
		Phone:         submission.Phone,
		Company:       submission.Company,
		Message:       submission.Message,
		BusinessName:  configuration.BusinessName,
		BusinessInbox: configuration.BusinessInbox,
		Year:          time.Now().Year(),
	}
}

func renderTemplate(notificationTemplate *template.Template, data notificationData) (string, error) {
	rendered := &strings.Builder{}
	if executeErr := notificationTemplate.Execute(rendered, data); executeErr != nil {
		return "", fmt.Errorf("render %s: %w", notificationTemplate.Name(), executeErr)
	}
	return rendered.String(), nil
}

// buildBusinessEnvelope addresses the full inquiry to the business inbox with
// the submitter as reply-to.
func buildBusinessEnvelope(submission inquiry.Submission, configuration Config) (mailer.Envelope, error) {
	body, renderErr := renderTemplate(businessNotificationTemplate, newNotificationData(submission, configuration))
	if renderErr != nil {
		return mailer.Envelope{}, renderErr
	}
	return mailer.Envelope{
		Sender:    configuration.SenderAddress,
		Recipient: configuration.BusinessInbox,
		Subject:   fmt.Sprintf("New contact message from %s", submission.Name),
		BodyHTML:  body,
		ReplyTo:   submission.Email,
	}, nil
}

// buildAcknowledgmentEnvelope addresses a confirmation back to the submitter.
func buildAcknowledgmentEnvelope(submission inquiry.Submission, configuration Config) (mailer.Envelope, error) {
	body, renderErr := renderTemplate(acknowledgmentTemplate, newNotificationData(submission, configuration))
	if renderErr != nil {
		return mailer.Envelope{}, renderErr
	}
	return mailer.Envelope{
		Sender:    configuration.SenderAddress,
		Recipient: submission.Email,
		Subject:   fmt.Sprintf("We received your message - %s", configuration.BusinessName),
		BodyHTML:  body,
	}, nil
}
