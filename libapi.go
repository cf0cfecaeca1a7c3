package gazefan

import (
	"github.com/gazefan/gazefan/distributor"
	enginepkg "github.com/gazefan/gazefan/internal/engine"
	configpkg "github.com/gazefan/gazefan/internal/engine/config"
	errspkg "github.com/gazefan/gazefan/internal/engine/errors"
	"github.com/gazefan/gazefan/internal/engine/jsoncodec"
	loggingpkg "github.com/gazefan/gazefan/internal/engine/logging"
)

type (
	// Configuration surface.
	ConfigManager = configpkg.Manager
	ConfigInput   = configpkg.ConfigInput
	SessionConfig = configpkg.SessionConfig
	Template      = configpkg.Template
	RuntimeInfo   = configpkg.RuntimeInfo

	// Session surface.
	SessionManager     = enginepkg.SessionManager
	Session            = enginepkg.Session
	SessionState       = enginepkg.SessionState
	SessionStatus      = enginepkg.SessionStatus
	SessionSummary     = enginepkg.SessionSummary
	DistributionResult = enginepkg.DistributionResult
	Outcome            = enginepkg.Outcome
	Summary            = enginepkg.Summary

	// Distributor contract.
	Distributor             = distributor.Distributor
	DistributorFactory      = distributor.Factory
	DistributorParams       = distributor.Params
	DistributorState        = distributor.State
	DistributorRegistry     = distributor.Registry
	DistributorCapabilities = distributor.Capabilities
	Envelope                = distributor.Envelope

	// Error taxonomy.
	ConfigValidationError   = errspkg.ConfigValidationError
	FieldError              = errspkg.FieldError
	DuplicateSessionError   = errspkg.DuplicateSessionError
	SessionNotFoundError    = errspkg.SessionNotFoundError
	UnknownDistributorError = errspkg.UnknownDistributorError
	ConnectError            = errspkg.ConnectError
	SendError               = errspkg.SendError

	// Logging contract.
	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger
)

// Session lifecycle states.
const (
	SessionCreated = enginepkg.SessionCreated
	SessionReady   = enginepkg.SessionReady
	SessionClosed  = enginepkg.SessionClosed
)

// Distributor connection states.
const (
	StateDisconnected = distributor.StateDisconnected
	StateConnecting   = distributor.StateConnecting
	StateConnected    = distributor.StateConnected
	StateError        = distributor.StateError
)

// Built-in template names.
const (
	TemplateLocalTesting  = configpkg.TemplateLocalTesting
	TemplateResearchLab   = configpkg.TemplateResearchLab
	TemplateHighFrequency = configpkg.TemplateHighFrequency
	TemplateProduction    = configpkg.TemplateProduction
	TemplateMobileRemote  = configpkg.TemplateMobileRemote
)

var (
	NewConfigManager  = configpkg.NewManager
	NewSessionManager = enginepkg.NewSessionManager

	NewRegistry          = distributor.NewRegistry
	RegisterDistributor  = distributor.Register
	DistributorNames     = func() []string { return distributor.DefaultRegistry.Names() }
	GetCapabilities      = distributor.GetCapabilities
	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewNopLogger         = loggingpkg.NewNopLogger

	// JSON helpers on the engine's codec.
	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
	Encode    = jsoncodec.Encode
	Decode    = jsoncodec.Decode

	// Sentinel errors.
	ErrSessionIDRequired = errspkg.ErrSessionIDRequired
	ErrConfigRequired    = errspkg.ErrConfigRequired
	ErrEventNameRequired = errspkg.ErrEventNameRequired
	ErrUnknownTarget     = errspkg.ErrUnknownTarget
)
