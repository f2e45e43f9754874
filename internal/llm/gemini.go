package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/zulandar/dialbook/internal/dialogue"
	"google.golang.org/api/option"
)

// GeminiOpts holds parameters for creating a Gemini provider.
type GeminiOpts struct {
	APIKey      string
	Model       string        // defaults to gemini-1.5-pro
	Timeout     time.Duration // per request; defaults to 8s
	Temperature float32
}

// Gemini is a Provider and Classifier backed by Google's Gemini models.
type Gemini struct {
	client      *genai.Client
	model       string
	timeout     time.Duration
	temperature float32
}

// NewGemini creates a Gemini client.
func NewGemini(ctx context.Context, opts GeminiOpts) (*Gemini, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("llm: gemini: api key is required")
	}
	model := opts.Model
	if model == "" {
		model = "gemini-1.5-pro"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("llm: gemini: new client: %w", err)
	}
	return &Gemini{client: client, model: model, timeout: timeout, temperature: opts.Temperature}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// Respond continues the call conversation.
func (g *Gemini) Respond(ctx context.Context, bctx dialogue.BookingContext, history []dialogue.Turn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(g.temperature)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(SystemPrompt(bctx))}}

	past, last := buildHistory(history, bctx.Language)
	cs := model.StartChat()
	cs.History = past

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", fmt.Errorf("llm: gemini: respond: %w", err)
	}
	text, err := responseText(resp)
	if err != nil {
		return "", fmt.Errorf("llm: gemini: respond: %w", err)
	}
	return text, nil
}

// Classify asks the model for the call's outcome.
func (g *Gemini) Classify(ctx context.Context, bctx dialogue.BookingContext, history []dialogue.Turn) (dialogue.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0)

	snap := dialogue.Snapshot{Turns: history}
	resp, err := model.GenerateContent(ctx, genai.Text(classifyPrompt(snap.Transcript())))
	if err != nil {
		return dialogue.OutcomeUnclear, fmt.Errorf("llm: gemini: classify: %w", err)
	}
	text, err := responseText(resp)
	if err != nil {
		return dialogue.OutcomeUnclear, fmt.Errorf("llm: gemini: classify: %w", err)
	}
	return dialogue.ParseOutcome(firstWord(text)), nil
}

// buildHistory maps the transcript to Gemini chat roles. The model speaks as
// "model" and the called party as "user". Consecutive turns of one role are
// merged, the chat always opens with a user turn, and the final user text is
// returned separately for SendMessage.
func buildHistory(turns []dialogue.Turn, lang string) ([]*genai.Content, string) {
	connected, silence := "(The call has connected.)", "(The other party said nothing.)"
	if dialogue.NormalizeLanguage(lang) == dialogue.LanguageGerman {
		connected, silence = "(Der Anruf ist verbunden.)", "(Die andere Seite hat nichts gesagt.)"
	}

	type msg struct {
		role string
		text []string
	}
	var msgs []msg
	for _, t := range turns {
		var role string
		switch t.Role {
		case dialogue.RoleAssistant:
			role = "model"
		case dialogue.RoleCounterparty:
			role = "user"
		default:
			continue
		}
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		if n := len(msgs); n > 0 && msgs[n-1].role == role {
			msgs[n-1].text = append(msgs[n-1].text, t.Text)
			continue
		}
		msgs = append(msgs, msg{role: role, text: []string{t.Text}})
	}
	if len(msgs) == 0 || msgs[0].role != "user" {
		msgs = append([]msg{{role: "user", text: []string{connected}}}, msgs...)
	}
	if msgs[len(msgs)-1].role != "user" {
		msgs = append(msgs, msg{role: "user", text: []string{silence}})
	}

	history := make([]*genai.Content, 0, len(msgs)-1)
	for _, m := range msgs[:len(msgs)-1] {
		history = append(history, &genai.Content{
			Role:  m.role,
			Parts: []genai.Part{genai.Text(strings.Join(m.text, " "))},
		})
	}
	return history, strings.Join(msgs[len(msgs)-1].text, " ")
}

var errEmptyResponse = errors.New("empty response")

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errEmptyResponse
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", errEmptyResponse
	}
	return out, nil
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
