// Package protocol defines the frames exchanged on the interview stream
// socket. Client audio arrives as raw binary PCM (16kHz mono) and is not
// decoded here; JSON text frames carry the control plane.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// AudioFormatPCM is the only outbound audio encoding.
	AudioFormatPCM = "pcm"
	// AudioOutSampleRateHz is the model's output rate.
	AudioOutSampleRateHz = 24000
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// ClientEndTurn signals that the candidate finished speaking.
type ClientEndTurn struct {
	Type string `json:"type"`
}

// ClientPing is a keepalive; the server answers with a pong frame.
type ClientPing struct {
	Type string `json:"type"`
}

// DecodeClientControl parses a text frame from the client. Binary frames are
// handled by the session directly and never reach this function.
func DecodeClientControl(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "end_turn", "end_of_turn":
		return ClientEndTurn{Type: "end_turn"}, nil
	case "ping":
		return ClientPing{Type: "ping"}, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// ServerAvatar announces the avatar video room, or its absence.
type ServerAvatar struct {
	Type    string  `json:"type"`
	URL     *string `json:"url"`
	Status  string  `json:"status"`
	Message string  `json:"message,omitempty"`
}

// ServerAudio carries one model audio chunk to the client.
type ServerAudio struct {
	Type       string `json:"type"`
	Audio      string `json:"audio"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
}

type ServerStatus struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ServerError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type ServerPong struct {
	Type string `json:"type"`
}

func AvatarReady(url string) ServerAvatar {
	return ServerAvatar{Type: "avatar", URL: &url, Status: "ready"}
}

func AvatarUnavailable() ServerAvatar {
	return ServerAvatar{
		Type:    "avatar",
		URL:     nil,
		Status:  "unavailable",
		Message: "Avatar not available - audio only mode",
	}
}

func Audio(pcm []byte) ServerAudio {
	return ServerAudio{
		Type:       "audio",
		Audio:      base64.StdEncoding.EncodeToString(pcm),
		Format:     AudioFormatPCM,
		SampleRate: AudioOutSampleRateHz,
	}
}

func Status(status, message string) ServerStatus {
	return ServerStatus{Type: "status", Status: status, Message: message}
}

func Error(message string) ServerError {
	return ServerError{Type: "error", Error: message}
}

func Pong() ServerPong {
	return ServerPong{Type: "pong"}
}

// Marshal encodes a server frame. Frames are plain structs; encoding cannot
// fail for any frame constructed by this package.
func Marshal(frame any) []byte {
	data, err := json.Marshal(frame)
	if err != nil {
		return nil
	}
	return data
}
