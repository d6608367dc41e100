package bus

// Message is the canonical inter-agent message shape, matching the registry
// webhook payload. Messages are never mutated after creation and are not
// persisted by the gate.
type Message struct {
	ID                    string `json:"message_id"`
	Sender                string `json:"sender"`
	SenderAgent           string `json:"sender_agent,omitempty"`
	Recipient             string `json:"recipient,omitempty"`
	Body                  string `json:"message"`
	Context               string `json:"context,omitempty"`
	GroupID               string `json:"group_id,omitempty"`
	GroupName             string `json:"group_name,omitempty"`
	CorrelationID         string `json:"correlation_id,omitempty"`
	RecipientConnectionID string `json:"recipient_connection_id,omitempty"`
	Timestamp             int64  `json:"timestamp"`
}

// IsGroup reports whether the message belongs to a group conversation.
func (m Message) IsGroup() bool { return m.GroupID != "" || m.GroupName != "" }
