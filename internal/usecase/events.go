package usecase

import "context"

// Auction event names published to the optional webhook sink.
const (
	EventAstaCreated          = "asta.created"
	EventAstaJoined           = "asta.joined"
	EventCalciatoreAssigned   = "calciatore.assigned"
	EventCalciatoreUnassigned = "calciatore.unassigned"
)

// EventPublisher delivers auction events to an external receiver. Publishing
// is best-effort: services log failures and never fail the operation.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload any) error
}
