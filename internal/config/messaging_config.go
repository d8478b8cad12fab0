package config

type MessagingConfig interface {
	GetMessagingBackend() string
	GetNATSURL() string
	GetMessagingSubject() string
}

type Messaging struct {
	src source
}

var _ MessagingConfig = Messaging{}

// GetMessagingBackend is "hub" for a single process or "nats" across processes.
func (m Messaging) GetMessagingBackend() string {
	return m.src.get("MESSAGING_BACKEND", "hub")
}

func (m Messaging) GetNATSURL() string {
	return m.src.get("NATS_URL", "nats://127.0.0.1:4222")
}

func (m Messaging) GetMessagingSubject() string {
	return m.src.get("MESSAGING_SUBJECT", "coordinator.auth")
}
