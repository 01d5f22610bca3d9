package events

// Message is one event received from the bus.
type Message struct {
	Topic string
	// Plant is "" for events that are not tied to a plant.
	Plant string
	Data  []byte
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers events matching topic on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}
