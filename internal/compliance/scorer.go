package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leadline-ai/switchboard/internal/model"
)

// Verdict is the graded outcome of a semantic scoring call.
type Verdict string

const (
	VerdictPass  Verdict = "pass"
	VerdictFlag  Verdict = "flag"
	VerdictBlock Verdict = "block"
)

// ScoreInput carries the candidate reply and its conversational context.
type ScoreInput struct {
	Reply     string
	Persona   model.Persona
	Inbound   string // the contact message the reply answers
	ContactID string
}

// ScoreResult holds the structured output from a scoring call.
type ScoreResult struct {
	Verdict Verdict
	Reason  string
}

// Scorer evaluates a candidate reply for discriminatory framing, steering,
// or coercive tone. The pattern tier finds literal terms (cheap, fast); the
// scorer catches phrasing the term list cannot (precise, slower).
type Scorer interface {
	Score(ctx context.Context, input ScoreInput) (ScoreResult, error)
}

// scoringPrompt asks for a three-way verdict plus a one-sentence reason.
// The prompt includes the inbound message so the scorer can judge steering
// relative to what the contact actually asked.
const scoringPrompt = `You are a fair-housing compliance reviewer for an SMS assistant.

The contact wrote:
%s

The assistant wants to reply:
%s

Judge ONLY the assistant's reply. Classify it:

- PASS: No fair-housing or discrimination concern.
- FLAG: Borderline phrasing worth human review (indirect steering, loaded neighborhood descriptions, family/age assumptions).
- BLOCK: Clear violation (protected-class preference, exclusionary language, discriminatory steering).

VERDICT: one of [pass, flag, block]
REASON: one sentence`

var validVerdicts = map[Verdict]bool{
	VerdictPass:  true,
	VerdictFlag:  true,
	VerdictBlock: true,
}

func formatPrompt(input ScoreInput) string {
	inbound := input.Inbound
	if inbound == "" {
		inbound = "(no inbound message available)"
	}
	return fmt.Sprintf(scoringPrompt, inbound, input.Reply)
}

// ParseScorerResponse extracts the verdict and reason from a model response.
// Parsing failures return an error so ambiguous responses are treated as
// transport failures (fail-closed to flagged), never as a pass.
func ParseScorerResponse(response string) (ScoreResult, error) {
	var verdict, reason string
	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		switch {
		case strings.HasPrefix(lower, "verdict:"):
			verdict = strings.ToLower(strings.TrimSpace(trimmed[len("verdict:"):]))
		case strings.HasPrefix(lower, "reason:"):
			reason = strings.TrimSpace(trimmed[len("reason:"):])
		}
	}

	if verdict == "" {
		return ScoreResult{}, fmt.Errorf("scorer: no VERDICT line found in response")
	}

	// Strip brackets or trailing text (e.g. "[flag]" → "flag").
	verdict = strings.Trim(verdict, "[] ")
	v := Verdict(verdict)
	if !validVerdicts[v] {
		return ScoreResult{}, fmt.Errorf("scorer: unrecognized verdict %q", verdict)
	}

	return ScoreResult{Verdict: v, Reason: reason}, nil
}

// NoopScorer passes every reply. Used when no model is configured; the
// length and pattern tiers still run.
type NoopScorer struct{}

func (NoopScorer) Score(_ context.Context, _ ScoreInput) (ScoreResult, error) {
	return ScoreResult{Verdict: VerdictPass}, nil
}

// perCallTimeout is the maximum time for a single scoring call. Separate
// from the pipeline's overall ceiling so one slow call doesn't stall the
// whole event.
const perCallTimeout = 15 * time.Second

// OllamaScorer scores replies using a local Ollama chat model.
type OllamaScorer struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaScorer creates a scorer that calls Ollama's chat API.
func NewOllamaScorer(baseURL, model string) *OllamaScorer {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaScorer{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: perCallTimeout + 5*time.Second,
		},
	}
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func (s *OllamaScorer) Score(ctx context.Context, input ScoreInput) (ScoreResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
	defer cancel()

	body, err := json.Marshal(ollamaChatRequest{
		Model: s.model,
		Messages: []ollamaChatMessage{
			{Role: "user", Content: formatPrompt(input)},
		},
		Stream: false,
	})
	if err != nil {
		return ScoreResult{}, fmt.Errorf("ollama scorer: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, s.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return ScoreResult{}, fmt.Errorf("ollama scorer: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return ScoreResult{}, fmt.Errorf("ollama scorer: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ScoreResult{}, fmt.Errorf("ollama scorer: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ScoreResult{}, fmt.Errorf("ollama scorer: decode response: %w", err)
	}

	return ParseScorerResponse(result.Message.Content)
}

// OpenAIScorer scores replies using the OpenAI chat completions API.
type OpenAIScorer struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIScorer creates a scorer that calls the OpenAI chat API.
func NewOpenAIScorer(apiKey, model string) *OpenAIScorer {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIScorer{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: perCallTimeout + 5*time.Second,
		},
	}
}

type openAIChatRequest struct {
	Model    string              `json:"model"`
	Messages []openAIChatMessage `json:"messages"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (s *OpenAIScorer) Score(ctx context.Context, input ScoreInput) (ScoreResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
	defer cancel()

	body, err := json.Marshal(openAIChatRequest{
		Model: s.model,
		Messages: []openAIChatMessage{
			{Role: "user", Content: formatPrompt(input)},
		},
	})
	if err != nil {
		return ScoreResult{}, fmt.Errorf("openai scorer: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return ScoreResult{}, fmt.Errorf("openai scorer: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return ScoreResult{}, fmt.Errorf("openai scorer: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ScoreResult{}, fmt.Errorf("openai scorer: status %d: %s", resp.StatusCode, string(respBody))
	}

	var result openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ScoreResult{}, fmt.Errorf("openai scorer: decode response: %w", err)
	}

	if len(result.Choices) == 0 {
		return ScoreResult{}, fmt.Errorf("openai scorer: no choices in response")
	}

	return ParseScorerResponse(result.Choices[0].Message.Content)
}
