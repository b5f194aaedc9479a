package driven

// EventPublisher emits import lifecycle events to a message bus
type EventPublisher interface {
	Publish(subject string, payload any) error
}
