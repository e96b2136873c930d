// Package moderation – HTTP classifier client.
//
// This file implements the Classifier boundary over an OpenAI-compatible
// chat-completions endpoint. The request carries a fixed evaluation rubric
// and the submission fields; only the first choice's message content is
// returned. Timeouts and response-shape enforcement live in the Adjudicator,
// which owns the degrade path.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/partline/go-parts-backend/internal/spam"
)

// HTTPClassifier calls a hosted language model over HTTP.
type HTTPClassifier struct {
	// Endpoint is the chat-completions URL.
	Endpoint string
	// APIKey is sent as a bearer token when non-empty.
	APIKey string
	// Model names the model to invoke.
	Model string
	// Client defaults to http.DefaultClient. Per-call deadlines come from the
	// caller's context; the Adjudicator always supplies one.
	Client *http.Client
}

// rubric is the fixed evaluation prompt. The model is instructed to answer
// with a bare JSON object so the parse boundary has a fighting chance.
const rubric = `You moderate part requests on a car-parts marketplace.
Evaluate the submission below on: legitimacy of the request, appropriate
language, realistic vehicle and part fields, and plausible phone format.
Respond with ONLY a JSON object of the form
{"decision":"approved"|"rejected"|"needs_human_review","confidence":<0..1>,"rationale":"<short reason>"}.`

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Classify posts the rubric and submission to the model and returns the raw
// text of the first choice. Any non-2xx status or empty choice list is an
// error; the Adjudicator translates errors into a review hold.
func (c *HTTPClassifier) Classify(ctx context.Context, sub spam.Submission) (string, error) {
	payload := chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: rubric},
			{Role: "user", Content: formatSubmission(sub)},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a short prefix for the error; the body is untrusted.
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("classifier status %d: %s", resp.StatusCode, string(b))
	}

	var out chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("classifier returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// formatSubmission renders the submission fields for the user message.
func formatSubmission(sub spam.Submission) string {
	return fmt.Sprintf(
		"vehicle: %s %s %d\npart: %s\ndescription: %s\nlocation: %s\nphone: %s",
		sub.Make, sub.Model, sub.Year, sub.PartName, sub.Description, sub.Location, sub.Phone,
	)
}
