package live

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/voxlink/pkg/codec"
)

// BidiGenerateContent JSON messages. Only the fields the session reads or
// writes are modelled.

// ── outgoing ──────────────────────────────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *wireContent     `json:"systemInstruction,omitempty"`
	Tools                    []wireTool       `json:"tools,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig  *voiceConfig `json:"voiceConfig,omitempty"`
	LanguageCode string       `json:"languageCode,omitempty"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *wireInlineData `json:"inlineData,omitempty"`
}

type wireInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireTool struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations,omitempty"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []wireInlineData `json:"mediaChunks"`
}

type clientContentMessage struct {
	ClientContent clientContent `json:"clientContent"`
}

type clientContent struct {
	Turns        []wireContent `json:"turns"`
	TurnComplete bool          `json:"turnComplete"`
}

type toolResponseMessage struct {
	ToolResponse toolResponse `json:"toolResponse"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// ── incoming ──────────────────────────────────────────────────────────────────

type serverMessage struct {
	SetupComplete        *json.RawMessage      `json:"setupComplete,omitempty"`
	ServerContent        *serverContent        `json:"serverContent,omitempty"`
	ToolCall             *toolCallMsg          `json:"toolCall,omitempty"`
	ToolCallCancellation *toolCallCancellation `json:"toolCallCancellation,omitempty"`
	GoAway               *goAway               `json:"goAway,omitempty"`
	Error                *peerError            `json:"error,omitempty"`
}

// known reports whether any recognised variant is present.
func (m *serverMessage) known() bool {
	return m.SetupComplete != nil || m.ServerContent != nil || m.ToolCall != nil ||
		m.ToolCallCancellation != nil || m.GoAway != nil || m.Error != nil
}

type serverContent struct {
	ModelTurn           *wireContent   `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type toolCallMsg struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type toolCallCancellation struct {
	IDs []string `json:"ids"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

type peerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// ── builders ──────────────────────────────────────────────────────────────────

func buildSetup(model string, cfg SessionConfig) setupMessage {
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	msg := setupMessage{Setup: setupConfig{Model: model}}

	for _, m := range cfg.Modalities {
		msg.Setup.GenerationConfig.ResponseModalities = append(msg.Setup.GenerationConfig.ResponseModalities, string(m))
	}
	if cfg.Voice != "" || cfg.LanguageCode != "" {
		sc := &speechConfig{LanguageCode: cfg.LanguageCode}
		if cfg.Voice != "" {
			sc.VoiceConfig = &voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice}}
		}
		msg.Setup.GenerationConfig.SpeechConfig = sc
	}
	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &wireContent{Parts: []wirePart{{Text: cfg.Instructions}}}
	}
	if len(cfg.Tools) > 0 {
		decls := make([]functionDeclaration, len(cfg.Tools))
		for i, t := range cfg.Tools {
			decls[i] = functionDeclaration{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
		}
		msg.Setup.Tools = []wireTool{{FunctionDeclarations: decls}}
	}
	if cfg.InputTranscription {
		msg.Setup.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputTranscription {
		msg.Setup.OutputAudioTranscription = &struct{}{}
	}
	return msg
}

// toWireParts sanitizes text and normalizes inline payloads.
func toWireParts(parts []Part) ([]wirePart, error) {
	out := make([]wirePart, 0, len(parts))
	for i, p := range parts {
		var wp wirePart
		if p.Text != "" {
			text, err := codec.SanitizeText(p.Text)
			if err != nil {
				return nil, fmt.Errorf("live: part %d: %w", i, err)
			}
			wp.Text = text
		}
		if p.InlineData != nil {
			data, err := codec.Normalize(string(p.InlineData.Data))
			if err != nil {
				return nil, fmt.Errorf("live: part %d: %w", i, err)
			}
			wp.InlineData = &wireInlineData{MIMEType: p.InlineData.MIMEType, Data: string(data)}
		}
		if wp.Text == "" && wp.InlineData == nil {
			continue
		}
		out = append(out, wp)
	}
	return out, nil
}

func fromWirePart(p wirePart) Part {
	out := Part{Text: p.Text}
	if p.InlineData != nil {
		out.InlineData = &InlineData{MIMEType: p.InlineData.MIMEType, Data: codec.WireFrame(p.InlineData.Data)}
	}
	return out
}
