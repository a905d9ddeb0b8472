package bus

// InboundMessage is a platform message event, consumed read-only by the
// moderation pipeline.
type InboundMessage struct {
	Channel     string   `json:"channel"`
	SenderID    string   `json:"sender_id"`
	SenderIsBot bool     `json:"sender_is_bot"`
	ChatID      string   `json:"chat_id"`
	MessageID   string   `json:"message_id,omitempty"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
	MentionsBot bool     `json:"mentions_bot"`
}

// OutboundMessage is a reply, reaction or typing signal routed back to the
// originating channel. Typing events carry no content.
type OutboundMessage struct {
	Channel   string `json:"channel"`
	ChatID    string `json:"chat_id"`
	ReplyToID string `json:"reply_to_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Reaction  string `json:"reaction,omitempty"`
	Typing    bool   `json:"typing,omitempty"`
}
