package live

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/voxlink/pkg/codec"
)

// Status is the connection state of a [Manager].
type Status int32

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// WebSocket close codes understood by the session.
const (
	CodeNormal          = 1000
	CodeGoingAway       = 1001
	CodeAbnormal        = 1006
	CodeInvalidPayload  = 1007
	CodePolicyViolation = 1008
	CodeMessageTooBig   = 1009
	CodeInternalError   = 1011
)

// CloseReason classifies why a transport ended.
type CloseReason int

const (
	CloseUnknown CloseReason = iota
	CloseNormal
	ClosePeerGoingAway
	CloseProtocolViolation
	ClosePeerInternalError
	CloseTimeout
)

// CloseReasonFromCode maps a WebSocket close code to its reason. Codes not in
// the table map to CloseUnknown; the original code travels alongside.
func CloseReasonFromCode(code int) CloseReason {
	switch code {
	case CodeNormal:
		return CloseNormal
	case CodeGoingAway:
		return ClosePeerGoingAway
	case CodeAbnormal:
		return CloseTimeout
	case CodeInvalidPayload, CodePolicyViolation, CodeMessageTooBig:
		return CloseProtocolViolation
	case CodeInternalError:
		return ClosePeerInternalError
	default:
		return CloseUnknown
	}
}

func (r CloseReason) String() string {
	switch r {
	case CloseNormal:
		return "normal"
	case ClosePeerGoingAway:
		return "peer_going_away"
	case CloseProtocolViolation:
		return "protocol_violation"
	case ClosePeerInternalError:
		return "peer_internal_error"
	case CloseTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Modality is a response modality requested from the model.
type Modality string

const (
	ModalityAudio Modality = "AUDIO"
	ModalityText  Modality = "TEXT"
)

// ToolDeclaration describes a function the model may call.
type ToolDeclaration struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object.
	Parameters map[string]any
}

// SessionConfig is authored by the persona layer and handed to Connect. The
// Manager snapshots it on every caller Connect; later edits by the caller
// never affect a running session or its reconnections.
type SessionConfig struct {
	Modalities   []Modality
	Voice        string
	LanguageCode string
	Instructions string
	Tools        []ToolDeclaration

	// InputTranscription and OutputTranscription request text transcripts of
	// the user's and the model's speech.
	InputTranscription  bool
	OutputTranscription bool
}

// Validate checks c and returns a normalized deep copy. All problems are
// reported together; every error wraps [ErrConfigInvalid].
func (c SessionConfig) Validate() (SessionConfig, error) {
	var errs []error

	if len(c.Modalities) == 0 {
		errs = append(errs, fmt.Errorf("%w: at least one modality is required", ErrConfigInvalid))
	}
	seen := make(map[Modality]bool, len(c.Modalities))
	for _, m := range c.Modalities {
		mm := Modality(strings.ToUpper(string(m)))
		if mm != ModalityAudio && mm != ModalityText {
			errs = append(errs, fmt.Errorf("%w: unknown modality %q", ErrConfigInvalid, m))
			continue
		}
		if seen[mm] {
			errs = append(errs, fmt.Errorf("%w: duplicate modality %q", ErrConfigInvalid, m))
		}
		seen[mm] = true
	}

	out := SessionConfig{
		Voice:               strings.TrimSpace(c.Voice),
		LanguageCode:        strings.TrimSpace(c.LanguageCode),
		InputTranscription:  c.InputTranscription,
		OutputTranscription: c.OutputTranscription,
	}
	for _, m := range []Modality{ModalityAudio, ModalityText} {
		if seen[m] {
			out.Modalities = append(out.Modalities, m)
		}
	}

	if c.Instructions != "" {
		text, err := codec.SanitizeText(c.Instructions)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: instructions: %w", ErrConfigInvalid, err))
		}
		out.Instructions = text
	}

	names := make(map[string]bool, len(c.Tools))
	for i, t := range c.Tools {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("%w: tools[%d]: name is required", ErrConfigInvalid, i))
		} else if names[t.Name] {
			errs = append(errs, fmt.Errorf("%w: tools[%d]: duplicate name %q", ErrConfigInvalid, i, t.Name))
		}
		names[t.Name] = true
		out.Tools = append(out.Tools, ToolDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  cloneSchema(t.Parameters),
		})
	}

	if err := errors.Join(errs...); err != nil {
		return SessionConfig{}, err
	}
	return out, nil
}

// HasModality reports whether m was requested.
func (c SessionConfig) HasModality(m Modality) bool {
	return slices.Contains(c.Modalities, m)
}

// Part is one piece of conversational content.
type Part struct {
	Text       string
	InlineData *InlineData
}

// InlineData is a base64 payload with its MIME type.
type InlineData struct {
	MIMEType string
	Data     codec.WireFrame
}

// MediaChunk is one realtime input chunk, typically a captured audio frame.
type MediaChunk struct {
	MIMEType string
	Data     codec.WireFrame
}

// FunctionCall is a tool invocation requested by the model. Args is passed
// through verbatim.
type FunctionCall struct {
	ID   string
	Name string
	Args []byte
}

// FunctionResponse answers a FunctionCall.
type FunctionResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// cloneSchema deep-copies a decoded JSON schema so nested objects and arrays
// are not shared with the caller.
func cloneSchema(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneSchema(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(v)
	default:
		return v
	}
}
