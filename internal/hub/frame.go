package hub

import (
	"encoding/json"
	"fmt"
)

// Message is the wire envelope carried by every data frame.
type Message struct {
	Type string          `json:"type"`
	Seq  uint64          `json:"seq"`
	Data json.RawMessage `json:"data"`
}

// Encode frames one message for the persistent stream:
//
//	id: <seq>
//	data: <json>
//	<blank line>
//
// It is a standalone serializer with no knowledge of the transport.
func Encode(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream message: %w", err)
	}
	return []byte(fmt.Sprintf("id: %d\ndata: %s\n\n", msg.Seq, body)), nil
}

// Keepalive is a comment frame that defeats idle-connection timeouts.
// It consumes no sequence number.
func Keepalive() []byte {
	return []byte(": keepalive\n\n")
}
