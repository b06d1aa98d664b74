package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thagencia/inquiry_svc/internal/dispatch"
	"github.com/thagencia/inquiry_svc/internal/health"
	"github.com/thagencia/inquiry_svc/internal/httpapi"
	"github.com/thagencia/inquiry_svc/internal/logger"
	"github.com/thagencia/inquiry_svc/internal/mailer"
	"github.com/thagencia/inquiry_svc/internal/monitoring"
	"github.com/thagencia/inquiry_svc/internal/risk"
)

const (
	commandUseName              = "server"
	commandShortDescription     = "Run the inquiry server"
	commandLongDescription      = "Launch the contact inquiry verification and dispatch HTTP server"
	missingConfigurationMessage = "missing required configuration"
	loggerCreationErrorMessage  = "logger"
	logEventListening           = "listening"
	logFieldAddress             = "addr"
	loggerContextServer         = "server"

	flagNameApplicationAddress    = "app-addr"
	flagNameSMTPHost              = "smtp-host"
	flagNameSMTPPort              = "smtp-port"
	flagNameSMTPUsername          = "smtp-user"
	flagNameSMTPPassword          = "smtp-password"
	flagNameSenderAddress         = "smtp-from"
	flagNameBusinessInbox         = "business-inbox"
	flagNameBusinessName          = "business-name"
	flagNameRecaptchaAPIKey       = "recaptcha-api-key"
	flagNameRecaptchaProjectID    = "recaptcha-project-id"
	flagNameRecaptchaSiteKey      = "recaptcha-site-key"
	flagNameRecaptchaEndpoint     = "recaptcha-endpoint"
	flagNameAllowInsecureFallback = "allow-insecure-fallback"
	flagNameLogLevel              = "log-level"
	flagNameLogFile               = "log-file"
	flagNameRateLimitPerSecond    = "rate-limit-rps"
	flagNameRateLimitBurst        = "rate-limit-burst"

	environmentKeyApplicationAddress    = "APP_ADDR"
	environmentKeySMTPHost              = "SMTP_HOST"
	environmentKeySMTPPort              = "SMTP_PORT"
	environmentKeySMTPUsername          = "SMTP_USER"
	environmentKeySMTPPassword          = "SMTP_PASSWORD"
	environmentKeySenderAddress         = "SMTP_FROM"
	environmentKeyBusinessInbox         = "BUSINESS_INBOX"
	environmentKeyBusinessName          = "BUSINESS_NAME"
	environmentKeyRecaptchaAPIKey       = "RECAPTCHA_API_KEY"
	environmentKeyRecaptchaProjectID    = "RECAPTCHA_PROJECT_ID"
	environmentKeyRecaptchaSiteKey      = "RECAPTCHA_SITE_KEY"
	environmentKeyRecaptchaEndpoint     = "RECAPTCHA_ENDPOINT"
	environmentKeyAllowInsecureFallback = "ALLOW_INSECURE_FALLBACK"
	environmentKeyLogLevel              = "LOG_LEVEL"
	environmentKeyLogFile               = "LOG_FILE"
	environmentKeyRateLimitPerSecond    = "RATE_LIMIT_RPS"
	environmentKeyRateLimitBurst        = "RATE_LIMIT_BURST"

	defaultApplicationAddress = ":8080"
	defaultSMTPPort           = 587
	defaultSenderAddress      = "noreply@thagencia.com"
	defaultBusinessInbox      = "ventas@thagencia.com"
	defaultBusinessName       = "THagencia"
	defaultLogLevel           = "info"
	defaultRateLimitPerSec    = 0.2
	defaultRateLimitBurst     = 6

	publicRouteContact = "/api/contact"
	routeMetrics       = "/metrics"
	routeLive          = "/live"
	routeReady         = "/ready"

	corsOriginWildcard      = "*"
	corsHeaderContentType   = "Content-Type"
	httpMethodGet           = "GET"
	httpMethodOptions       = "OPTIONS"
	httpMethodPost          = "POST"
	readHeaderTimeoutSecond = 5
	shutdownTimeout         = 10 * time.Second

	unexpectedArgumentsMessage    = "unexpected command arguments"
	commandInitializationFailure  = "failed to configure command"
	flagNotDefinedMessage         = "flag %s not defined"
	environmentConfigurationError = "failed to apply environment configuration"
)

var (
	corsAllowedMethods = []string{httpMethodPost, httpMethodGet, httpMethodOptions}
	corsAllowedHeaders = []string{corsHeaderContentType}
	corsExposedHeaders = []string{corsHeaderContentType}
	corsAllowOrigins   = []string{corsOriginWildcard}
)

// ServerConfig captures configuration needed to run the server.
type ServerConfig struct {
	ApplicationAddress    string
	SMTPHost              string
	SMTPPort              int
	SMTPUsername          string
	SMTPPassword          string
	SenderAddress         string
	BusinessInbox         string
	BusinessName          string
	RecaptchaAPIKey       string
	RecaptchaProjectID    string
	RecaptchaSiteKey      string
	RecaptchaEndpoint     string
	AllowInsecureFallback bool
	LogLevel              string
	LogFilePath           string
	RateLimitPerSecond    float64
	RateLimitBurst        int
}

// ServerApplication constructs and executes the server command.
type ServerApplication struct {
	configurationLoader *viper.Viper
}

// NewServerApplication creates a ServerApplication with default dependencies.
func NewServerApplication() *ServerApplication {
	return &ServerApplication{
		configurationLoader: viper.New(),
	}
}

// Command builds the Cobra command for the server.
func (application *ServerApplication) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:   commandUseName,
		Short: commandShortDescription,
		Long:  commandLongDescription,
		RunE:  application.runCommand,
	}

	if configurationErr := application.configureCommand(rootCommand); configurationErr != nil {
		return nil, configurationErr
	}

	return rootCommand, nil
}

type flagBinding struct {
	environmentKey string
	flagName       string
}

var flagBindings = []flagBinding{
	{environmentKeyApplicationAddress, flagNameApplicationAddress},
	{environmentKeySMTPHost, flagNameSMTPHost},
	{environmentKeySMTPPort, flagNameSMTPPort},
	{environmentKeySMTPUsername, flagNameSMTPUsername},
	{environmentKeySMTPPassword, flagNameSMTPPassword},
	{environmentKeySenderAddress, flagNameSenderAddress},
	{environmentKeyBusinessInbox, flagNameBusinessInbox},
	{environmentKeyBusinessName, flagNameBusinessName},
	{environmentKeyRecaptchaAPIKey, flagNameRecaptchaAPIKey},
	{environmentKeyRecaptchaProjectID, flagNameRecaptchaProjectID},
	{environmentKeyRecaptchaSiteKey, flagNameRecaptchaSiteKey},
	{environmentKeyRecaptchaEndpoint, flagNameRecaptchaEndpoint},
	{environmentKeyAllowInsecureFallback, flagNameAllowInsecureFallback},
	{environmentKeyLogLevel, flagNameLogLevel},
	{environmentKeyLogFile, flagNameLogFile},
	{environmentKeyRateLimitPerSecond, flagNameRateLimitPerSecond},
	{environmentKeyRateLimitBurst, flagNameRateLimitBurst},
}

func (application *ServerApplication) configureCommand(command *cobra.Command) error {
	application.configurationLoader.AutomaticEnv()

	commandFlags := command.Flags()
	commandFlags.String(flagNameApplicationAddress, defaultApplicationAddress, "address for the HTTP server to listen on")
	commandFlags.String(flagNameSMTPHost, "", "SMTP transport host")
	commandFlags.Int(flagNameSMTPPort, defaultSMTPPort, "SMTP transport port")
	commandFlags.String(flagNameSMTPUsername, "", "SMTP transport username")
	commandFlags.String(flagNameSMTPPassword, "", "SMTP transport password")
	commandFlags.String(flagNameSenderAddress, defaultSenderAddress, "sender address for outbound notifications")
	commandFlags.String(flagNameBusinessInbox, defaultBusinessInbox, "inbox receiving the business copy of each inquiry")
	commandFlags.String(flagNameBusinessName, defaultBusinessName, "business name used in notification templates")
	commandFlags.String(flagNameRecaptchaAPIKey, "", "reCAPTCHA Enterprise API key")
	commandFlags.String(flagNameRecaptchaProjectID, "", "reCAPTCHA Enterprise project identifier")
	commandFlags.String(flagNameRecaptchaSiteKey, "", "public site integration key")
	commandFlags.String(flagNameRecaptchaEndpoint, "", "override for the risk assessment endpoint base URL")
	commandFlags.Bool(flagNameAllowInsecureFallback, false, "accept submissions when risk assessment is unavailable (development only)")
	commandFlags.String(flagNameLogLevel, defaultLogLevel, "log level: debug, info, warn, error")
	commandFlags.String(flagNameLogFile, "", "optional rotated log file path")
	commandFlags.Float64(flagNameRateLimitPerSecond, defaultRateLimitPerSec, "sustained requests per second allowed per client IP")
	commandFlags.Int(flagNameRateLimitBurst, defaultRateLimitBurst, "request burst allowed per client IP")

	for _, binding := range flagBindings {
		if bindErr := application.bindFlag(commandFlags, binding.environmentKey, binding.flagName); bindErr != nil {
			return bindErr
		}
		if environmentErr := application.applyEnvironmentConfiguration(commandFlags, binding.environmentKey, binding.flagName); environmentErr != nil {
			return environmentErr
		}
	}

	return nil
}

func (application *ServerApplication) bindFlag(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf(flagNotDefinedMessage, flagName)
	}

	if bindErr := application.configurationLoader.BindPFlag(environmentKey, flag); bindErr != nil {
		return bindErr
	}

	return nil
}

func (application *ServerApplication) applyEnvironmentConfiguration(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	environmentValue, environmentFound := os.LookupEnv(environmentKey)
	if !environmentFound {
		return nil
	}

	if setErr := flagSet.Set(flagName, environmentValue); setErr != nil {
		return fmt.Errorf("%s: %w", environmentConfigurationError, setErr)
	}

	return nil
}

func (application *ServerApplication) loadServerConfig() ServerConfig {
	loaderInstance := application.configurationLoader
	return ServerConfig{
		ApplicationAddress:    loaderInstance.GetString(environmentKeyApplicationAddress),
		SMTPHost:              strings.TrimSpace(loaderInstance.GetString(environmentKeySMTPHost)),
		SMTPPort:              loaderInstance.GetInt(environmentKeySMTPPort),
		SMTPUsername:          strings.TrimSpace(loaderInstance.GetString(environmentKeySMTPUsername)),
		SMTPPassword:          loaderInstance.GetString(environmentKeySMTPPassword),
		SenderAddress:         strings.TrimSpace(loaderInstance.GetString(environmentKeySenderAddress)),
		BusinessInbox:         strings.TrimSpace(loaderInstance.GetString(environmentKeyBusinessInbox)),
		BusinessName:          strings.TrimSpace(loaderInstance.GetString(environmentKeyBusinessName)),
		RecaptchaAPIKey:       strings.TrimSpace(loaderInstance.GetString(environmentKeyRecaptchaAPIKey)),
		RecaptchaProjectID:    strings.TrimSpace(loaderInstance.GetString(environmentKeyRecaptchaProjectID)),
		RecaptchaSiteKey:      strings.TrimSpace(loaderInstance.GetString(environmentKeyRecaptchaSiteKey)),
		RecaptchaEndpoint:     strings.TrimSpace(loaderInstance.GetString(environmentKeyRecaptchaEndpoint)),
		AllowInsecureFallback: loaderInstance.GetBool(environmentKeyAllowInsecureFallback),
		LogLevel:              loaderInstance.GetString(environmentKeyLogLevel),
		LogFilePath:           strings.TrimSpace(loaderInstance.GetString(environmentKeyLogFile)),
		RateLimitPerSecond:    loaderInstance.GetFloat64(environmentKeyRateLimitPerSecond),
		RateLimitBurst:        loaderInstance.GetInt(environmentKeyRateLimitBurst),
	}
}

func (application *ServerApplication) runCommand(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}

	serverConfig := application.loadServerConfig()
	if validationErr := ensureRequiredConfiguration(serverConfig); validationErr != nil {
		return validationErr
	}

	applicationLogger, loggerErr := logger.New(logger.Config{
		Level:       serverConfig.LogLevel,
		Development: serverConfig.AllowInsecureFallback,
		FilePath:    serverConfig.LogFilePath,
		MaxSizeMB:   100,
		MaxBackups:  3,
		MaxAgeDays:  28,
		Compress:    true,
	})
	if loggerErr != nil {
		return fmt.Errorf("%s: %w", loggerCreationErrorMessage, loggerErr)
	}
	defer func() {
		_ = applicationLogger.Sync()
	}()

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	riskClient := risk.NewEnterpriseClient(applicationLogger, risk.Config{
		APIKey:                serverConfig.RecaptchaAPIKey,
		ProjectID:             serverConfig.RecaptchaProjectID,
		SiteKey:               serverConfig.RecaptchaSiteKey,
		BaseURL:               serverConfig.RecaptchaEndpoint,
		AllowInsecureFallback: serverConfig.AllowInsecureFallback,
	})

	smtpConfig := mailer.SMTPConfig{
		Host:     serverConfig.SMTPHost,
		Port:     serverConfig.SMTPPort,
		Username: serverConfig.SMTPUsername,
		Password: serverConfig.SMTPPassword,
	}
	smtpMailer := mailer.NewSMTPMailer(applicationLogger, smtpConfig)

	coordinator := dispatch.NewCoordinator(applicationLogger, riskClient, smtpMailer, metrics, dispatch.Config{
		BusinessName:  serverConfig.BusinessName,
		BusinessInbox: serverConfig.BusinessInbox,
		SenderAddress: serverConfig.SenderAddress,
	})

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpapi.RequestLogger(applicationLogger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsAllowOrigins,
		AllowMethods:     corsAllowedMethods,
		AllowHeaders:     corsAllowedHeaders,
		ExposeHeaders:    corsExposedHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	contactHandlers := httpapi.NewContactHandlers(applicationLogger, coordinator, serverConfig.AllowInsecureFallback)
	rateLimiter := httpapi.NewClientRateLimiter(serverConfig.RateLimitPerSecond, serverConfig.RateLimitBurst)
	router.POST(publicRouteContact, rateLimiter.Middleware(), contactHandlers.CreateInquiry)

	healthHandler := health.NewHandler(smtpConfig.Address())
	router.GET(routeLive, gin.WrapF(healthHandler.LiveEndpoint))
	router.GET(routeReady, gin.WrapF(healthHandler.ReadyEndpoint))
	router.GET(routeMetrics, gin.WrapH(promhttp.Handler()))

	httpServer := &http.Server{
		Addr:              serverConfig.ApplicationAddress,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeoutSecond * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	applicationLogger.Info(logEventListening, zap.String(logFieldAddress, serverConfig.ApplicationAddress))

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if waitErr := group.Wait(); waitErr != nil {
		applicationLogger.Error(loggerContextServer, zap.Error(waitErr))
		return waitErr
	}

	return nil
}

func ensureRequiredConfiguration(configuration ServerConfig) error {
	var missingParameters []string

	if configuration.SMTPHost == "" {
		missingParameters = append(missingParameters, flagNameSMTPHost)
	}

	if !configuration.AllowInsecureFallback {
		if configuration.RecaptchaAPIKey == "" {
			missingParameters = append(missingParameters, flagNameRecaptchaAPIKey)
		}
		if configuration.RecaptchaProjectID == "" {
			missingParameters = append(missingParameters, flagNameRecaptchaProjectID)
		}
		if configuration.RecaptchaSiteKey == "" {
			missingParameters = append(missingParameters, flagNameRecaptchaSiteKey)
		}
	}

	if len(missingParameters) == 0 {
		return nil
	}

	return fmt.Errorf("%s: %s", missingConfigurationMessage, strings.Join(missingParameters, ", "))
}

func main() {
	_ = godotenv.Load()

	application := NewServerApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}

	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
