// Package config builds validated, template-merged session configurations
// for the gazefan engine. A Manager owns its template registry explicitly:
// there are no package-level registries, so multiple managers can coexist
// in tests without bleeding state into each other.
package config

import (
	"net/url"
	"os"
	"runtime"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/gazefan/gazefan/distributor"
	enginerrors "github.com/gazefan/gazefan/internal/engine/errors"
	"github.com/gazefan/gazefan/internal/engine/logging"
)

// envPrefix marks the environment variables GetRuntimeInfo reports.
const envPrefix = "GAZEFAN_"

// ConfigInput is the raw material for a session config: an optional
// template name plus caller overrides merged on top of it.
type ConfigInput struct {
	Template            string                        `json:"template"`
	Distributors        map[string]distributor.Params `json:"distributors"`
	EnabledDistributors []string                      `json:"enabledDistributors"`
	EventRouting        map[string][]string           `json:"eventRouting"`
}

// SessionConfig is the validated, fully resolved configuration a session is
// created from. It is immutable once produced; sessions replace parts of it
// only through explicit reconfigure calls.
type SessionConfig struct {
	Distributors        map[string]distributor.Params
	EnabledDistributors []string
	EventRouting        map[string][]string
}

// Clone returns a deep copy so session mutations never reach the config the
// caller holds.
func (c *SessionConfig) Clone() *SessionConfig {
	out := &SessionConfig{
		Distributors: make(map[string]distributor.Params, len(c.Distributors)),
		EventRouting: make(map[string][]string, len(c.EventRouting)),
	}
	for name, params := range c.Distributors {
		out.Distributors[name] = params.Clone()
	}
	for event, targets := range c.EventRouting {
		out.EventRouting[event] = slices.Clone(targets)
	}
	out.EnabledDistributors = slices.Clone(c.EnabledDistributors)
	return out
}

// Template is a reusable partial session configuration.
type Template struct {
	Distributors map[string]distributor.Params `json:"distributors"`
	EventRouting map[string][]string           `json:"eventRouting"`
}

// RuntimeInfo exposes read-only process diagnostics for template-selection
// UIs. It has no effect on distribution behaviour.
type RuntimeInfo struct {
	Platform             string
	Environment          string
	AvailableTemplates   []string
	EnvironmentVariables map[string]string
}

// Manager validates raw config input against the distributor registry and
// resolves templates.
type Manager struct {
	mu        sync.RWMutex
	templates map[string]Template
	logger    logging.ServiceLogger
}

// NewManager creates a config manager seeded with the built-in templates.
// A nil logger disables logging.
func NewManager(logger logging.ServiceLogger) *Manager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	m := &Manager{
		templates: make(map[string]Template),
		logger:    logger,
	}
	for name, tpl := range builtinTemplates() {
		m.templates[name] = tpl
	}
	return m
}

// RegisterTemplate stores or overwrites a template. Configs already
// produced from the old template are unaffected.
func (m *Manager) RegisterTemplate(name string, tpl Template) error {
	if name == "" {
		return enginerrors.ErrTemplateNameRequired
	}
	m.mu.Lock()
	m.templates[name] = tpl
	m.mu.Unlock()
	m.logger.Debug("template registered", logging.LogFields{"template": name})
	return nil
}

// TemplateNames returns the sorted names of all registered templates.
func (m *Manager) TemplateNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.templates))
	for name := range m.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateSessionConfig resolves the named template (empty template name means
// an empty base), deep-merges the caller's distributors and event routing on
// top of it field-level, applies the enabledDistributors allow-list as a
// final filter, and validates the result. On validation failure it returns
// a *errors.ConfigValidationError naming every offending field; the config
// is all-or-nothing, never partially applied.
func (m *Manager) CreateSessionConfig(input ConfigInput) (*SessionConfig, error) {
	verr := &enginerrors.ConfigValidationError{}

	base := Template{}
	if input.Template != "" {
		m.mu.RLock()
		tpl, ok := m.templates[input.Template]
		m.mu.RUnlock()
		if !ok {
			verr.Addf("template", "unknown template %q", input.Template)
			return nil, verr
		}
		base = tpl
	}

	cfg := &SessionConfig{
		Distributors: make(map[string]distributor.Params),
		EventRouting: make(map[string][]string),
	}

	for name, params := range base.Distributors {
		cfg.Distributors[name] = params.Clone()
	}
	for name, params := range input.Distributors {
		cfg.Distributors[name] = cfg.Distributors[name].Merge(params)
	}

	// Routing merges per event name: a caller entry replaces the template's
	// target list for that event, untouched template events survive.
	for event, targets := range base.EventRouting {
		cfg.EventRouting[event] = slices.Clone(targets)
	}
	for event, targets := range input.EventRouting {
		cfg.EventRouting[event] = slices.Clone(targets)
	}

	// The allow-list removes non-listed entries entirely; they are absent
	// from the produced config, not merely disabled.
	if input.EnabledDistributors != nil {
		enabled := make(map[string]bool, len(input.EnabledDistributors))
		for _, name := range input.EnabledDistributors {
			enabled[name] = true
		}
		for name := range cfg.Distributors {
			if !enabled[name] {
				delete(cfg.Distributors, name)
			}
		}
		cfg.EnabledDistributors = slices.Clone(input.EnabledDistributors)
	}

	m.validate(cfg, verr)
	if err := verr.ErrOrNil(); err != nil {
		return nil, err
	}

	m.logger.Info("session config created", logging.LogFields{
		"template":     input.Template,
		"distributors": len(cfg.Distributors),
		"events":       len(cfg.EventRouting),
	})
	return cfg, nil
}

// GetRuntimeInfo reports the process-wide diagnostics consumed by the
// template-selection surface.
func (m *Manager) GetRuntimeInfo() RuntimeInfo {
	env := os.Getenv(envPrefix + "ENV")
	if env == "" {
		env = "development"
	}

	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, envPrefix) {
			continue
		}
		key, value, _ := strings.Cut(kv, "=")
		vars[key] = value
	}

	return RuntimeInfo{
		Platform:             runtime.GOOS,
		Environment:          env,
		AvailableTemplates:   m.TemplateNames(),
		EnvironmentVariables: vars,
	}
}

// validate applies structural rules per distributor type. Unknown type
// names pass through untouched so custom registered adapters stay usable.
func (m *Manager) validate(cfg *SessionConfig, verr *enginerrors.ConfigValidationError) {
	for name, params := range cfg.Distributors {
		field := "distributors." + name
		switch name {
		case "mqtt":
			requireURL(verr, field+".broker", params["broker"], true)
			checkQoS(verr, field+".qos", params["qos"])
		case "http":
			requireURL(verr, field+".baseUrl", params["baseUrl"], true)
		case "websocket", "sse":
			requirePort(verr, field+".port", params["port"], true)
		case "udp":
			requireTargets(verr, field+".targets", params["targets"])
			requirePort(verr, field+".port", params["port"], false)
		case "nats":
			requireURL(verr, field+".url", params["url"], true)
		case "kafka":
			requireBrokerList(verr, field+".brokers", params["brokers"])
		case "amqp":
			requireURL(verr, field+".url", params["url"], true)
		}
	}

	for event, targets := range cfg.EventRouting {
		for _, target := range targets {
			if _, ok := cfg.Distributors[target]; !ok {
				verr.Addf("eventRouting."+event, "references unknown distributor %q", target)
			}
		}
	}
}

func requireURL(verr *enginerrors.ConfigValidationError, field string, value any, required bool) {
	raw, ok := value.(string)
	if !ok || raw == "" {
		if required {
			verr.Add(field, "is required")
		}
		return
	}
	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		verr.Addf(field, "%q is not an absolute URL", raw)
	}
}

func requirePort(verr *enginerrors.ConfigValidationError, field string, value any, required bool) {
	port, ok := asInt(value)
	if !ok {
		if required {
			verr.Add(field, "is required")
		}
		return
	}
	if port < 1 || port > 65535 {
		verr.Addf(field, "%d is outside 1..65535", port)
	}
}

func requireTargets(verr *enginerrors.ConfigValidationError, field string, value any) {
	targets, ok := value.([]any)
	if !ok {
		if list, isList := value.([]string); isList && len(list) > 0 {
			return
		}
		verr.Add(field, "is required")
		return
	}
	if len(targets) == 0 {
		verr.Add(field, "must not be empty")
	}
}

func requireBrokerList(verr *enginerrors.ConfigValidationError, field string, value any) {
	switch brokers := value.(type) {
	case []any:
		if len(brokers) == 0 {
			verr.Add(field, "must not be empty")
		}
	case []string:
		if len(brokers) == 0 {
			verr.Add(field, "must not be empty")
		}
	default:
		verr.Add(field, "is required")
	}
}

func checkQoS(verr *enginerrors.ConfigValidationError, field string, value any) {
	qos, ok := asInt(value)
	if !ok {
		return
	}
	if qos < 0 || qos > 2 {
		verr.Addf(field, "%d is not a valid QoS level", qos)
	}
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
