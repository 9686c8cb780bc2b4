package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	criteriarepo "mailsweep-backend/internal/criteria/repository"
	triagedomain "mailsweep-backend/internal/triage/domain"
)

const (
	maxSnippetChars = 400
	maxPromptLabels = 100

	defaultClassifyTimeout = 60 * time.Second
)

const triagePromptTemplate = `You are triaging a busy founder's inbox so that only items requiring attention remain.
Classify the email described below and respond with a single JSON object containing:
- "category": one of ["spam", "receipt", "useful_archive", "requires_response", "should_read"]
- "label": label to use when category is "receipt" or "useful_archive"; otherwise use null or ""
- "confidence": number between 0 and 1
- "reason": brief justification
- "summary": concise (<160 chars) synopsis for the user

Guidelines:
- Use "spam" only for clear spam/phishing. These will be deleted.
- Use "receipt" for purchase confirmations or invoices. Always set "label" to "%s".
- Use "useful_archive" for reference info worth keeping. Prefer an existing label from this list: %s. If none apply, suggest a concise new label name in Title Case.
- Use "requires_response" when the founder needs to reply. Leave the email in the inbox; do not suggest additional labels.
- Use "should_read" for items to read soon without responding. Leave in inbox without new labels.
Always return valid JSON and nothing else.

Email metadata:
From: %s
To: %s
Date: %s
Subject: %s
Snippet: %s
`

// Engine turns a message envelope plus the live enabled criteria into a
// canonical decision. One classifier call per message, no conversation state
// retained between messages.
type Engine struct {
	classifier Classifier
	criteria   criteriarepo.Repository
	timeout    time.Duration
	logger     *slog.Logger
}

// NewEngine creates a decision engine. A zero timeout falls back to the
// default per-call classifier deadline.
func NewEngine(classifier Classifier, criteria criteriarepo.Repository, timeout time.Duration, logger *slog.Logger) *Engine {
	if timeout <= 0 {
		timeout = defaultClassifyTimeout
	}
	return &Engine{
		classifier: classifier,
		criteria:   criteria,
		timeout:    timeout,
		logger:     logger.With("component", "engine"),
	}
}

// Classify builds the prompt for the message, calls the classifier under the
// per-call deadline, and parses the response. existingLabels is the
// mailbox's current user label set, offered to the model for useful_archive.
func (e *Engine) Classify(ctx context.Context, env *triagedomain.MessageEnvelope, existingLabels []string) (*triagedomain.Decision, error) {
	prompt, err := e.BuildPrompt(ctx, env, existingLabels)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.classifier.Classify(callCtx, prompt)
	if err != nil {
		// A timeout gets the same handling as unparseable output: the
		// message stays unmutated and is logged state=error, no inline retry.
		return nil, fmt.Errorf("classifier call: %w", err)
	}

	decision, err := ParseDecision(raw)
	if err != nil {
		e.logger.Debug("classifier response rejected", "message_id", env.ID, "error", err)
		return nil, err
	}
	return decision, nil
}

// BuildPrompt renders the fixed triage instructions for the envelope and
// appends the enabled criteria in creation order. The criteria snapshot is
// read live on every call; ordering affects only the model's visibility into
// prior corrections.
func (e *Engine) BuildPrompt(ctx context.Context, env *triagedomain.MessageEnvelope, existingLabels []string) (string, error) {
	labelsText := "None"
	if len(existingLabels) > 0 {
		unique := make(map[string]struct{}, len(existingLabels))
		names := make([]string, 0, len(existingLabels))
		for _, name := range existingLabels {
			if name == "" {
				continue
			}
			if _, seen := unique[name]; seen {
				continue
			}
			unique[name] = struct{}{}
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) > maxPromptLabels {
			names = names[:maxPromptLabels]
		}
		if len(names) > 0 {
			labelsText = strings.Join(names, ", ")
		}
	}

	snippet := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(env.Snippet, "\r\n", " "), "\n", " "))
	if runes := []rune(snippet); len(runes) > maxSnippetChars {
		snippet = string(runes[:maxSnippetChars]) + "..."
	}

	prompt := fmt.Sprintf(triagePromptTemplate,
		triagedomain.ReceiptLabel, labelsText,
		env.From, env.To, env.Date, env.Subject, snippet)

	items, err := e.criteria.ListEnabled(ctx)
	if err != nil {
		return "", fmt.Errorf("list criteria: %w", err)
	}
	if len(items) == 0 {
		return prompt, nil
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\nAdditional user-specified criteria:\n")
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item.Text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// ManualDecision builds a decision from a user-supplied category and label,
// bypassing the classifier entirely.
func ManualDecision(category triagedomain.Category, label string) (*triagedomain.Decision, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("invalid category %q", category)
	}
	return &triagedomain.Decision{
		Category:   category,
		Label:      strings.TrimSpace(label),
		Confidence: 1.0,
		Reason:     "manual override",
	}, nil
}

// rawDecision mirrors the JSON object the classifier is instructed to return.
type rawDecision struct {
	Category   string      `json:"category"`
	Label      interface{} `json:"label"`
	Confidence interface{} `json:"confidence"`
	Reason     string      `json:"reason"`
	Summary    string      `json:"summary"`
}

// ParseDecision parses a raw classifier response into a decision. Code
// fences around the JSON are tolerated; anything that does not yield a JSON
// object with a category from the closed set is a ParseError.
func ParseDecision(raw string) (*triagedomain.Decision, error) {
	var parsed rawDecision
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		candidate := extractJSONObject(raw)
		if candidate == "" {
			return nil, &triagedomain.ParseError{Reason: "no JSON object found", Raw: raw}
		}
		if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
			return nil, &triagedomain.ParseError{Reason: err.Error(), Raw: raw}
		}
	}

	category := triagedomain.Category(parsed.Category)
	if !category.Valid() {
		return nil, &triagedomain.ParseError{
			Reason: fmt.Sprintf("category %q outside the closed set", parsed.Category),
			Raw:    raw,
		}
	}

	label := ""
	switch v := parsed.Label.(type) {
	case nil:
	case string:
		label = strings.TrimSpace(v)
	default:
		return nil, &triagedomain.ParseError{Reason: "label must be a string or null", Raw: raw}
	}

	confidence := 0.0
	if v, ok := parsed.Confidence.(float64); ok {
		confidence = v
	}
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	return &triagedomain.Decision{
		Category:   category,
		Label:      label,
		Confidence: confidence,
		Reason:     strings.TrimSpace(parsed.Reason),
		Summary:    strings.TrimSpace(parsed.Summary),
	}, nil
}

// extractJSONObject strips code fences and returns the first {...} block, or
// empty when none exists.
func extractJSONObject(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		// Drop an optional language tag on the fence line.
		if idx := strings.Index(text, "\n"); idx != -1 {
			text = text[idx+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}
