package domain

import "time"

// EventKind identifies the category of a structured Event. New kinds are
// additive; a sink unfamiliar with one should log it opaquely rather than
// drop it.
type EventKind string

const (
	EventSignalGenerated   EventKind = "signal_generated"
	EventOrderSubmitted    EventKind = "order_submitted"
	EventOrderFilled       EventKind = "order_filled"
	EventOrderRejected     EventKind = "order_rejected"
	EventOrderCancelled    EventKind = "order_cancelled"
	EventPositionOpened    EventKind = "position_opened"
	EventPositionClosed    EventKind = "position_closed"
	EventWhaleReclassified EventKind = "whale_reclassified"
	EventCircuitBreaker    EventKind = "circuit_breaker_tripped"
)

// Event is the core's single structured output shape. Delivery (console,
// webhook, chat) is entirely a sink concern; the core never knows or cares
// which sinks are attached.
type Event struct {
	Kind     EventKind
	At       time.Time
	MarketID string
	AssetID  string
	Wallet   string
	Message  string
	Fields   map[string]string
}
