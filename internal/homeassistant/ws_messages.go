package homeassistant

import "encoding/json"

// Message types exchanged during the session.
const (
	msgAuthRequired = "auth_required"
	msgAuth         = "auth"
	msgAuthOK       = "auth_ok"
	msgAuthInvalid  = "auth_invalid"
	msgResult       = "result"
)

// WSAuthMessage is sent to authenticate with Home Assistant.
type WSAuthMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

// WSAuthInvalid is received when authentication fails.
type WSAuthInvalid struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// WSResultMessage is a command result from Home Assistant.
type WSResultMessage struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *WSError        `json:"error,omitempty"`
}

// WSError is the error body of a failed result.
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSCommandWithPayload is a command whose payload fields sit next to id and type.
type WSCommandWithPayload struct {
	ID      int64          `json:"id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"-"`
}

// MarshalJSON flattens the payload into the message. id and type always win.
func (c *WSCommandWithPayload) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(c.Payload)+2)
	for k, v := range c.Payload {
		m[k] = v
	}
	m["id"] = c.ID
	m["type"] = c.Type
	return json.Marshal(m)
}

type envelope struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// ParseMessageType extracts the message type from a raw JSON message.
func ParseMessageType(data []byte) (string, error) {
	var msg envelope
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", err
	}
	return msg.Type, nil
}

// ParseMessageID extracts the message ID from a raw JSON message.
func ParseMessageID(data []byte) (int64, error) {
	var msg envelope
	if err := json.Unmarshal(data, &msg); err != nil {
		return 0, err
	}
	return msg.ID, nil
}
