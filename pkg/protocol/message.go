// Package protocol defines the WebSocket messages exchanged by moodcam.
//
// Two channels share the same envelope: publishers push camera frames to
// /ws/ingest, and dashboards receive projection events from /ws/status.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Publisher → server
	TypeFrame MessageType = "frame" // Camera frame
	TypeHello MessageType = "hello" // Publisher introduces itself

	// Server → publisher
	TypeWelcome MessageType = "welcome" // Assigned publisher id and wanted format
	TypeError   MessageType = "error"   // Rejected message

	// Server → dashboard
	TypeEmotion MessageType = "emotion" // Current emotion or null
	TypeHistory MessageType = "history" // Recent observations, newest first
	TypeStats   MessageType = "stats"   // Aggregate statistics
	TypeStatus  MessageType = "status"  // Detection status flags

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal %s data: %w", msgType, err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol: parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("protocol: message has no type")
	}
	return &msg, nil
}

// =============================================================================
// Ingest messages
// =============================================================================

// FrameData contains a camera frame
type FrameData struct {
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Format  string `json:"format"` // "jpeg"
	Data    string `json:"data"`   // base64 encoded
	FrameID uint64 `json:"frame_id,omitempty"`
}

// HelloData is sent by a publisher right after connecting
type HelloData struct {
	Name   string `json:"name,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// WelcomeData tells a publisher who it is and what the server wants
type WelcomeData struct {
	ID        string `json:"id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Framerate int    `json:"framerate"`
	Quality   int    `json:"quality"`
}

// ErrorData reports a rejected message
type ErrorData struct {
	Message string `json:"message"`
}

// =============================================================================
// Bidirectional
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
