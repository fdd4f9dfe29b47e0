package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for relay observability spans and metrics.
var (
	AttrLanguage = attribute.Key("relay.language")
	AttrBackend  = attribute.Key("relay.backend")
	AttrOutcome  = attribute.Key("relay.outcome")

	AttrClientID = attribute.Key("hub.client_id")
)

// Outcome values for AttrOutcome.
const (
	OutcomeOK    = "ok"
	OutcomeFault = "fault"
)
