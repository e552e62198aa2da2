package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o-mini"

// LLMAnalyzer asks a language model to classify the request against the
// baseline. It returns plain errors on transport or parse failure; the
// Classifier wraps those as ErrClassificationUnavailable so callers never
// mistake an outage for a low-confidence answer.
type LLMAnalyzer struct {
	Provider        string // "anthropic" or "openai"
	Model           string
	AnthropicAPIKey string
	OpenAIAPIKey    string
}

type LLMUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// llmScopeDecision is the JSON shape the model must reply with.
type llmScopeDecision struct {
	Classification        string   `json:"classification"`
	Confidence            float64  `json:"confidence"`
	Reasoning             string   `json:"reasoning"`
	MatchedScopeItemIndex *int     `json:"matched_scope_item_index"`
	ScopeCreepIndicators  []string `json:"scope_creep_indicators"`
}

const classifySystemPrompt = `You are a scope-creep detection assistant for freelancers. Analyze a client request against the agreed project scope.

You will receive the scope items (0-indexed), the client request, and optional project context.

Respond with a JSON object containing:
- classification: one of "in_scope", "out_of_scope", "clarification_needed", "revision"
- confidence: a float from 0.0 to 1.0
- reasoning: a brief explanation
- matched_scope_item_index: the 0-based index of the matching scope item, or null; set it ONLY for in_scope or revision
- scope_creep_indicators: array of short tags (e.g. "new-feature", "scope-addition", "unbounded-hours", "minimization", "urgency-pressure") describing why the request reads out-of-scope; empty when in scope

Classification guidelines:
- "in_scope": covered by an agreed scope item
- "out_of_scope": work not covered by any scope item
- "clarification_needed": the client is asking a question, or the intent is ambiguous
- "revision": a change to work already in scope, or rework of an item marked completed

Respond ONLY with valid JSON (no markdown).`

func (a *LLMAnalyzer) Analyze(ctx context.Context, baseline ScopeBaseline, requestText string) (AnalysisResult, error) {
	userPrompt := buildClassifyPrompt(baseline, requestText)

	var responseText string
	var usage LLMUsage
	var err error

	switch a.Provider {
	case "openai":
		model := a.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		log.Printf("llm classify provider=openai model=%s items=%d", model, len(baseline.Items))
		responseText, usage, err = callOpenAI(ctx, a.OpenAIAPIKey, model, classifySystemPrompt, userPrompt)
	default:
		model := a.Model
		if model == "" {
			model = defaultAnthropicModel
		}
		log.Printf("llm classify provider=anthropic model=%s items=%d", model, len(baseline.Items))
		responseText, usage, err = callAnthropic(ctx, a.AnthropicAPIKey, model, classifySystemPrompt, userPrompt)
	}
	if err != nil {
		return AnalysisResult{}, err
	}
	log.Printf("llm classify tokens_in=%d tokens_out=%d", usage.InputTokens, usage.OutputTokens)

	return parseScopeDecision(responseText)
}

func buildClassifyPrompt(baseline ScopeBaseline, requestText string) string {
	var scopeLines strings.Builder
	for i, item := range baseline.Items {
		scopeLines.WriteString(fmt.Sprintf("%d. %s", i, item.Title))
		if item.Description != "" {
			scopeLines.WriteString(" - " + item.Description)
		}
		if item.Category != "" {
			scopeLines.WriteString(fmt.Sprintf(" [%s]", item.Category))
		}
		if item.IsCompleted {
			scopeLines.WriteString(" (completed)")
		}
		scopeLines.WriteString("\n")
	}
	scopeBlock := scopeLines.String()
	if scopeBlock == "" {
		scopeBlock = "(no scope items defined)\n"
	}

	prompt := "## Project Scope Items:\n" + scopeBlock +
		"\n## Client Request:\n" + requestText + "\n"
	if baseline.ProjectDescription != "" {
		prompt += "\n## Project Context:\n" + baseline.ProjectDescription + "\n"
	}
	prompt += "\nAnalyze this request and reply with the JSON assessment."
	return prompt
}

func parseScopeDecision(responseText string) (AnalysisResult, error) {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = strings.TrimSpace(responseText)

	var decision llmScopeDecision
	if err := json.Unmarshal([]byte(responseText), &decision); err != nil {
		truncated := responseText
		if len(truncated) > 512 {
			truncated = truncated[:512] + fmt.Sprintf("... [truncated, total_length=%d]", len(responseText))
		}
		return AnalysisResult{}, fmt.Errorf("parsing LLM scope response: %w (response: %s)", err, truncated)
	}

	result := AnalysisResult{
		Classification:   ScopeClassification(strings.TrimSpace(decision.Classification)),
		Confidence:       decision.Confidence,
		Reasoning:        strings.TrimSpace(decision.Reasoning),
		MatchedItemIndex: decision.MatchedScopeItemIndex,
	}
	for _, tag := range decision.ScopeCreepIndicators {
		if tag = strings.TrimSpace(tag); tag != "" {
			result.Indicators = append(result.Indicators, tag)
		}
	}
	// Models sometimes volunteer an index for classifications that must
	// not carry one; drop it rather than fail the whole call.
	if result.Classification != ClassificationInScope && result.Classification != ClassificationRevision {
		result.MatchedItemIndex = nil
	}
	return result, nil
}

// --- Anthropic ---

func callAnthropic(ctx context.Context, apiKey, model, systemPrompt, userPrompt string) (string, LLMUsage, error) {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", LLMUsage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := LLMUsage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

// --- OpenAI ---

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func callOpenAI(ctx context.Context, apiKey, model, systemPrompt, userPrompt string) (string, LLMUsage, error) {
	reqBody := openAIRequest{
		Model: model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.3,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := externalHTTPClient.Do(req)
	if err != nil {
		log.Printf("llm openai error: %v", err)
		return "", LLMUsage{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", LLMUsage{}, fmt.Errorf("reading response: %w", err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", LLMUsage{}, fmt.Errorf("parsing OpenAI response: %w", err)
	}
	if openAIResp.Error != nil {
		log.Printf("llm openai api error: %s", openAIResp.Error.Message)
		return "", LLMUsage{}, fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}
	if len(openAIResp.Choices) == 0 {
		return "", LLMUsage{}, fmt.Errorf("no choices in OpenAI response")
	}

	usage := LLMUsage{}
	if openAIResp.Usage != nil {
		usage.InputTokens = openAIResp.Usage.PromptTokens
		usage.OutputTokens = openAIResp.Usage.CompletionTokens
	}
	return openAIResp.Choices[0].Message.Content, usage, nil
}
