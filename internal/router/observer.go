package router

// Observer receives routing metrics. Implementations must be cheap and
// non-blocking; they run on the publishing goroutine.
type Observer interface {
	// EventPublished is called once per accepted event with the number of
	// consumers it was offered to.
	EventPublished(consumers int)
	// EventDropped is called when a DropOldest or DropNewest channel loses an event.
	EventDropped(consumerID string, policy OverflowPolicy)
	// ConsumerDisconnected is called when a consumer is forcibly unregistered.
	ConsumerDisconnected(consumerID string)
	// PublishTimedOut is called when a Block wait expires.
	PublishTimedOut(consumerID string)
}

// NopObserver discards all observations.
type NopObserver struct{}

func (NopObserver) EventPublished(int)                  {}
func (NopObserver) EventDropped(string, OverflowPolicy) {}
func (NopObserver) ConsumerDisconnected(string)         {}
func (NopObserver) PublishTimedOut(string)              {}
