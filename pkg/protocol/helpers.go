package protocol

import (
	"encoding/base64"
	"errors"
	"time"
)

// ErrUnsupportedFormat is returned for frames that are not JPEG.
var ErrUnsupportedFormat = errors.New("protocol: unsupported frame format")

// FormatJPEG is the only frame format the ingest endpoint accepts.
const FormatJPEG = "jpeg"

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(width, height int, jpegData []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, FrameData{
		Width:   width,
		Height:  height,
		Format:  FormatJPEG,
		Data:    base64.StdEncoding.EncodeToString(jpegData),
		FrameID: frameID,
	})
}

// NewHelloMessage creates a publisher greeting
func NewHelloMessage(name string, width, height int) (*Message, error) {
	return NewMessage(TypeHello, HelloData{Name: name, Width: width, Height: height})
}

// NewWelcomeMessage creates the server's reply to a new publisher
func NewWelcomeMessage(w WelcomeData) (*Message, error) {
	return NewMessage(TypeWelcome, w)
}

// NewErrorMessage creates an error message
func NewErrorMessage(text string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: text})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id, Timestamp: time.Now().UnixMilli()})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	latency := pongTS - pingTS
	if pingTS == 0 || latency < 0 {
		latency = 0
	}
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: latency,
	})
}

// NewEvent creates a dashboard event. data may be nil, which encodes as
// "data": null for TypeEmotion so clients can clear the current emotion.
func NewEvent(msgType MessageType, data interface{}) (*Message, error) {
	msg, err := NewMessage(msgType, data)
	if err != nil {
		return nil, err
	}
	if msg.Data == nil {
		msg.Data = []byte("null")
	}
	return msg, nil
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data. Only JPEG frames are
// accepted; an empty format is taken to mean JPEG.
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	if f.Format != "" && f.Format != FormatJPEG {
		return nil, ErrUnsupportedFormat
	}
	return base64.StdEncoding.DecodeString(f.Data)
}

// GetHelloData extracts a publisher greeting
func (m *Message) GetHelloData() (*HelloData, error) {
	var data HelloData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetWelcomeData extracts the server welcome
func (m *Message) GetWelcomeData() (*WelcomeData, error) {
	var data WelcomeData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts an error message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
