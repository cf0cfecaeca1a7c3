// Package distributors wires every built-in distributor into the default
// registry. Import it and call RegisterAll when an application wants the full
// adapter set; applications that only need a few adapters register those
// packages individually instead.
package distributors

import (
	// The channel distributor registers itself at import time.
	_ "github.com/gazefan/gazefan/distributor/channel"

	"github.com/gazefan/gazefan/distributor/amqp"
	"github.com/gazefan/gazefan/distributor/http"
	"github.com/gazefan/gazefan/distributor/kafka"
	"github.com/gazefan/gazefan/distributor/mqtt"
	"github.com/gazefan/gazefan/distributor/nats"
	"github.com/gazefan/gazefan/distributor/sse"
	"github.com/gazefan/gazefan/distributor/udp"
	"github.com/gazefan/gazefan/distributor/websocket"
)

// RegisterAll registers every built-in distributor with the default registry.
func RegisterAll() {
	mqtt.Register()
	http.Register()
	websocket.Register()
	udp.Register()
	sse.Register()
	nats.Register()
	kafka.Register()
	amqp.Register()
}
