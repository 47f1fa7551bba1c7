package wsgateway

import (
	"encoding/json"
	"fmt"

	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSubscribe    MessageType = "subscribe"
	MessageTypeUnsubscribe  MessageType = "unsubscribe"
	MessageTypePing         MessageType = "ping"
	MessageTypePong         MessageType = "pong"
	MessageTypeNotification MessageType = "notification"
	MessageTypeSuccess      MessageType = "success"
	MessageTypeError        MessageType = "error"
)

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type  MessageType `json:"type"`
	Code  string      `json:"code,omitempty"`
	Codes []string    `json:"codes,omitempty"`
}

// ServerMessage represents a message to the client
type ServerMessage struct {
	Type    MessageType `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandleClientMessage parses and applies one client message
func (c *Connection) HandleClientMessage(raw []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.SendError("invalid_message", "failed to parse message")
		return fmt.Errorf("failed to parse client message: %w", err)
	}

	codes := msg.Codes
	if msg.Code != "" {
		codes = append(codes, msg.Code)
	}

	switch msg.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		if len(codes) == 0 {
			c.SendError("invalid_request", "code or codes field required")
			return nil
		}
		if msg.Type == MessageTypeSubscribe {
			c.Subscribe(codes...)
		} else {
			c.Unsubscribe(codes...)
		}
		logger.Debug("Client updated subscriptions",
			logger.String("connection_id", c.ID),
			logger.String("owner_id", c.OwnerID),
			logger.String("action", string(msg.Type)),
			logger.Strings("codes", codes),
		)
		c.SendJSON(ServerMessage{
			Type: MessageTypeSuccess,
			Data: map[string]interface{}{"action": msg.Type, "codes": codes},
		})
		return nil

	case MessageTypePing:
		c.SendJSON(ServerMessage{Type: MessageTypePong})
		return nil

	default:
		c.SendError("unknown_message_type", fmt.Sprintf("unknown message type: %s", msg.Type))
		return nil
	}
}
