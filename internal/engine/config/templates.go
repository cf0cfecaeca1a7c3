package config

import "github.com/gazefan/gazefan/distributor"

// Built-in template names.
const (
	TemplateLocalTesting  = "local_testing"
	TemplateResearchLab   = "research_lab"
	TemplateHighFrequency = "high_frequency"
	TemplateProduction    = "production"
	TemplateMobileRemote  = "mobile_remote"
)

// builtinTemplates returns the templates every Manager starts with. The
// defaults mirror the sensor-bridge deployments this engine grew out of:
// WebSocket consumers on 8080 and OpenTrack-style UDP head tracking on 4242.
func builtinTemplates() map[string]Template {
	return map[string]Template{
		TemplateLocalTesting: {
			Distributors: map[string]distributor.Params{
				"channel": {"bufferSize": 64, "topicPrefix": "gazefan."},
				"sse":     {"port": 8084, "host": "127.0.0.1"},
			},
			EventRouting: map[string][]string{
				"gaze":     {"channel", "sse"},
				"headPose": {"channel", "sse"},
				"presence": {"channel"},
			},
		},
		TemplateResearchLab: {
			Distributors: map[string]distributor.Params{
				"mqtt": {
					"broker":      "tcp://localhost:1883",
					"clientId":    "gazefan-lab",
					"topicPrefix": "gazefan/",
					"qos":         1,
				},
				"websocket": {"port": 8080},
			},
			EventRouting: map[string][]string{
				"gaze":     {"mqtt", "websocket"},
				"headPose": {"mqtt", "websocket"},
				"presence": {"mqtt"},
			},
		},
		TemplateHighFrequency: {
			Distributors: map[string]distributor.Params{
				"udp": {
					"targets": []string{"127.0.0.1:4242"},
					"format":  FormatOpenTrackParam,
				},
				"websocket": {"port": 8080, "compression": false},
			},
			EventRouting: map[string][]string{
				"headPose": {"udp", "websocket"},
				"gaze":     {"websocket"},
			},
		},
		TemplateProduction: {
			Distributors: map[string]distributor.Params{
				"mqtt": {
					"broker":      "tcp://localhost:1883",
					"clientId":    "gazefan",
					"topicPrefix": "gazefan/",
					"qos":         1,
					"retain":      false,
				},
				"http": {
					"baseUrl":    "https://ingest.example.com",
					"timeout":    3000,
					"retryCount": 2,
				},
			},
			EventRouting: map[string][]string{
				"gaze":     {"mqtt"},
				"headPose": {"mqtt"},
				"presence": {"mqtt", "http"},
			},
		},
		TemplateMobileRemote: {
			Distributors: map[string]distributor.Params{
				"websocket": {
					"port":           8080,
					"compression":    true,
					"maxConnections": 8,
				},
				"udp": {"targets": []string{"127.0.0.1:4242"}},
			},
			EventRouting: map[string][]string{
				"gaze":     {"websocket"},
				"headPose": {"websocket", "udp"},
			},
		},
	}
}

// FormatOpenTrackParam duplicates the udp adapter's format constant so
// templates stay decoupled from adapter packages.
const FormatOpenTrackParam = "opentrack"
