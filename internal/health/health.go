package health

import (
	"time"

	"github.com/heptiolabs/healthcheck"
)

const (
	goroutineCountThreshold = 200
	smtpDialTimeout         = 3 * time.Second
)

// NewHandler builds the liveness and readiness checks for the service.
// Readiness verifies the SMTP transport endpoint accepts TCP connections so
// an unreachable mail provider takes the instance out of rotation before
// submissions start failing at dispatch.
func NewHandler(smtpAddress string) healthcheck.Handler {
	handler := healthcheck.NewHandler()
	handler.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(goroutineCountThreshold))
	if smtpAddress != "" {
		handler.AddReadinessCheck("smtp-transport", healthcheck.TCPDialCheck(smtpAddress, smtpDialTimeout))
	}
	return handler
}
