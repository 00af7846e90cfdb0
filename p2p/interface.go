package p2p

// Message is the generic structure for any data sent between nodes.
type Message struct {
	Type    byte
	Payload []byte
}

// Broadcaster defines any component that can broadcast messages to the network.
type Broadcaster interface {
	Broadcast(msg *Message) error
}

// MessageHandler defines any component that can process a raw message from the network.
type MessageHandler interface {
	HandleMessage(msg *Message) error
}

// PeerMessageHandler is implemented by handlers that need to reply to the
// specific peer a message arrived from (resolver and backfill responses).
// Server prefers this over MessageHandler when both are satisfied.
type PeerMessageHandler interface {
	HandleMessageFrom(peerID string, msg *Message) error
}
