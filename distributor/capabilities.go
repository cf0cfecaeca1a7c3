package distributor

// Capabilities describes the delivery characteristics of a distributor
// variant. Use this to introspect what a transport can do at runtime; the
// engine itself only reads MaxPayloadSize, the rest is for callers picking
// transports per deployment.
type Capabilities struct {
	// Name is the canonical distributor name.
	Name string

	// Broadcast indicates one Send fans out to every connected consumer
	// (websocket, sse, udp target lists) rather than a single endpoint.
	Broadcast bool

	// RequiresEndpoint indicates the adapter needs a reachable remote
	// endpoint at connect time (brokers, http). Broadcast servers bind a
	// local port instead and connect trivially.
	RequiresEndpoint bool

	// Ordered indicates events arrive at one consumer in Send order.
	Ordered bool

	// Lossy indicates delivery is fire-and-forget: slow consumers drop
	// events instead of applying backpressure.
	Lossy bool

	// SupportsQoS indicates the transport has native delivery-guarantee
	// levels (MQTT QoS, AMQP confirms).
	SupportsQoS bool

	// MaxPayloadSize is the maximum encoded payload in bytes (0 = unknown).
	MaxPayloadSize int64
}

// Reliable reports whether the transport both orders events and applies
// backpressure instead of dropping.
func (c Capabilities) Reliable() bool {
	return c.Ordered && !c.Lossy
}

// Predefined capability sets for the built-in distributor variants.
var (
	MQTTCapabilities = Capabilities{
		Name:             "mqtt",
		RequiresEndpoint: true,
		Ordered:          true,
		SupportsQoS:      true,
		MaxPayloadSize:   268435455, // MQTT spec maximum
	}

	HTTPCapabilities = Capabilities{
		Name:             "http",
		RequiresEndpoint: true,
		Ordered:          false,
	}

	WebSocketCapabilities = Capabilities{
		Name:      "websocket",
		Broadcast: true,
		Ordered:   true,
		Lossy:     true, // slow clients are dropped, not waited on
	}

	UDPCapabilities = Capabilities{
		Name:           "udp",
		Broadcast:      true,
		Lossy:          true,
		MaxPayloadSize: 65507,
	}

	SSECapabilities = Capabilities{
		Name:      "sse",
		Broadcast: true,
		Ordered:   true,
		Lossy:     true,
	}

	NATSCapabilities = Capabilities{
		Name:             "nats",
		RequiresEndpoint: true,
		Ordered:          false,
		MaxPayloadSize:   1048576,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		RequiresEndpoint: true,
		Ordered:          true,
		MaxPayloadSize:   1048576,
	}

	AMQPCapabilities = Capabilities{
		Name:             "amqp",
		RequiresEndpoint: true,
		Ordered:          true,
		SupportsQoS:      true,
	}

	ChannelCapabilities = Capabilities{
		Name:    "channel",
		Ordered: true,
	}
)

// GetCapabilities returns the capabilities for a distributor by name from
// the default registry. Returns a zero-valued Capabilities struct carrying
// only the name if the distributor is unknown.
func GetCapabilities(name string) Capabilities {
	return DefaultRegistry.GetCapabilities(name)
}
