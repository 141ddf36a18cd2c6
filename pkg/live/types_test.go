package live_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/voxlink/pkg/codec"
	"github.com/MrWong99/voxlink/pkg/live"
)

func TestCloseReasonFromCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code int
		want live.CloseReason
	}{
		{1000, live.CloseNormal},
		{1001, live.ClosePeerGoingAway},
		{1006, live.CloseTimeout},
		{1007, live.CloseProtocolViolation},
		{1008, live.CloseProtocolViolation},
		{1009, live.CloseProtocolViolation},
		{1011, live.ClosePeerInternalError},
		{1012, live.CloseUnknown},
		{4000, live.CloseUnknown},
		{0, live.CloseUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			if got := live.CloseReasonFromCode(tt.code); got != tt.want {
				t.Errorf("CloseReasonFromCode(%d) = %v; want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestCloseError_IsProtocolViolation(t *testing.T) {
	t.Parallel()
	pv := fmt.Errorf("read: %w", &live.CloseError{Reason: live.CloseProtocolViolation, Code: 1008})
	if !errors.Is(pv, live.ErrProtocolViolation) {
		t.Error("protocol-violation close should match ErrProtocolViolation")
	}
	other := &live.CloseError{Reason: live.ClosePeerInternalError, Code: 1011, Text: "boom"}
	if errors.Is(other, live.ErrProtocolViolation) {
		t.Error("internal-error close must not match ErrProtocolViolation")
	}
	if got := other.Error(); got != "live: transport closed: peer_internal_error (1011): boom" {
		t.Errorf("Error() = %q", got)
	}
}

func TestErrorKind_Retryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind live.ErrorKind
		want bool
	}{
		{live.ErrorTransport, true},
		{live.ErrorTimeout, true},
		{live.ErrorPeer, true},
		{live.ErrorProtocolViolation, false},
		{live.ErrorConfigInvalid, false},
		{live.ErrorReconnectExhausted, false},
	}
	for _, tt := range tests {
		if got := tt.kind.Retryable(); got != tt.want {
			t.Errorf("%v.Retryable() = %v; want %v", tt.kind, got, tt.want)
		}
	}
}

func TestSessionConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     live.SessionConfig
		wantErr error
	}{
		{"audio only", live.SessionConfig{Modalities: []live.Modality{live.ModalityAudio}}, nil},
		{"lower case modality", live.SessionConfig{Modalities: []live.Modality{"text"}}, nil},
		{"no modalities", live.SessionConfig{}, live.ErrConfigInvalid},
		{"unknown modality", live.SessionConfig{Modalities: []live.Modality{"VIDEO"}}, live.ErrConfigInvalid},
		{"duplicate modality", live.SessionConfig{Modalities: []live.Modality{"AUDIO", "audio"}}, live.ErrConfigInvalid},
		{"control-only instructions", live.SessionConfig{
			Modalities:   []live.Modality{live.ModalityAudio},
			Instructions: "\x01\x02",
		}, codec.ErrTextUnsanitizable},
		{"unnamed tool", live.SessionConfig{
			Modalities: []live.Modality{live.ModalityAudio},
			Tools:      []live.ToolDeclaration{{Description: "x"}},
		}, live.ErrConfigInvalid},
		{"duplicate tool", live.SessionConfig{
			Modalities: []live.Modality{live.ModalityAudio},
			Tools:      []live.ToolDeclaration{{Name: "roll"}, {Name: "roll"}},
		}, live.ErrConfigInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate = %v; want %v", err, tt.wantErr)
			}
			if !errors.Is(err, live.ErrConfigInvalid) {
				t.Errorf("Validate error %v does not wrap ErrConfigInvalid", err)
			}
		})
	}
}

func TestSessionConfig_ValidateNormalizes(t *testing.T) {
	t.Parallel()
	in := live.SessionConfig{
		Modalities:   []live.Modality{"text", "AUDIO"},
		Voice:        "  Puck ",
		Instructions: "Be brief.\x07 Café.",
		Tools:        []live.ToolDeclaration{{Name: "roll", Parameters: map[string]any{"type": "object"}}},
	}
	out, err := in.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(out.Modalities) != 2 || out.Modalities[0] != live.ModalityAudio || out.Modalities[1] != live.ModalityText {
		t.Errorf("Modalities = %v", out.Modalities)
	}
	if out.Voice != "Puck" {
		t.Errorf("Voice = %q", out.Voice)
	}
	if want := "Be brief. Café."; out.Instructions != want {
		t.Errorf("Instructions = %q; want %q", out.Instructions, want)
	}
	if !out.HasModality(live.ModalityText) {
		t.Error("HasModality(TEXT) = false")
	}

	in.Tools[0].Parameters["type"] = "string"
	if out.Tools[0].Parameters["type"] != "object" {
		t.Error("Validate did not copy tool parameters")
	}
}

func TestSessionConfig_ValidateDeepCopiesToolSchema(t *testing.T) {
	t.Parallel()
	sides := map[string]any{"type": "integer"}
	enum := []any{"d6", "d20"}
	required := []string{"sides"}
	in := live.SessionConfig{
		Modalities: []live.Modality{live.ModalityAudio},
		Tools: []live.ToolDeclaration{{
			Name: "roll",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"sides": sides, "die": map[string]any{"enum": enum}},
				"required":   required,
			},
		}},
	}
	out, err := in.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	sides["type"] = "string"
	enum[0] = "d4"
	required[0] = "die"

	props := out.Tools[0].Parameters["properties"].(map[string]any)
	if got := props["sides"].(map[string]any)["type"]; got != "integer" {
		t.Errorf("nested property type = %v; want integer", got)
	}
	if got := props["die"].(map[string]any)["enum"].([]any)[0]; got != "d6" {
		t.Errorf("nested enum[0] = %v; want d6", got)
	}
	if got := out.Tools[0].Parameters["required"].([]string)[0]; got != "sides" {
		t.Errorf("required[0] = %v; want sides", got)
	}
}
