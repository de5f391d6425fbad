package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"golang.org/x/time/rate"

	"github.com/ayoisaiah/tally/internal/models"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultTimeout   = 20 * time.Second
	defaultRateLimit = 1.0
	defaultBurst     = 2
	maxResponseSize  = 1 << 20
)

// OnlineOptions configures the online classifier.
type OnlineOptions struct {
	Endpoint  string
	APIKey    string
	Model     string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// Online classifies segments with an OpenAI-compatible chat completions API.
type Online struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	history    History
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type onlineAnswer struct {
	Candidates []struct {
		Confidence *float64 `json:"confidence"`
		Label      string   `json:"label"`
		Project    string   `json:"project"`
	} `json:"candidates"`
}

// NewOnline creates an online classifier. history supplies the labels the
// model is asked to reuse and may be nil.
func NewOnline(opts OnlineOptions, history History) (*Online, error) {
	if opts.Endpoint == "" || opts.APIKey == "" {
		return nil, errNotConfigured
	}

	model := opts.Model
	if model == "" {
		model = defaultModel
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	limit := opts.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}

	burst := opts.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	return &Online{
		endpoint: strings.TrimSuffix(opts.Endpoint, "/"),
		apiKey:   opts.APIKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
		history: history,
	}, nil
}

// Endpoint returns the base URL requests are sent to.
func (o *Online) Endpoint() string {
	return o.endpoint
}

// Classify asks the model for candidates. Any transport or parsing failure
// is returned as a classification error.
func (o *Online) Classify(
	ctx context.Context,
	seg *models.Segment,
) ([]models.Candidate, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, errClassification.Wrap(err)
	}

	var known []pair

	if o.history != nil {
		records, err := o.history.Records(time.Time{}, seg.End)
		if err == nil {
			known = knownPairs(records)
		}
	}

	req := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: Prompt(seg, known)},
		},
		Temperature:    0.2,
		MaxTokens:      500,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	content, err := o.complete(ctx, req)
	if err != nil {
		return nil, err
	}

	return parseAnswer(ctx, content)
}

func (o *Online) complete(ctx context.Context, req chatRequest) (string, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", errClassification.Wrap(err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		o.endpoint+"/chat/completions",
		bytes.NewReader(jsonData),
	)
	if err != nil {
		return "", errClassification.Wrap(err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", errClassification.Wrap(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", errClassification.Wrap(err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", errOnlineStatus.Fmt(resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", errMalformed.Fmt("not a chat completion").Wrap(err)
	}

	if len(chatResp.Choices) == 0 {
		return "", errMalformed.Fmt("no choices")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// stripCodeFence removes a markdown code fence some models wrap JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)

	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")

	return strings.TrimSpace(s)
}

func parseAnswer(ctx context.Context, content string) ([]models.Candidate, error) {
	var answer onlineAnswer

	if err := json.Unmarshal([]byte(stripCodeFence(content)), &answer); err != nil {
		return nil, errMalformed.Fmt("invalid json").Wrap(err)
	}

	slog.DebugContext(
		ctx,
		"online classifier answered",
		slog.String("answer", spew.Sdump(answer)),
	)

	candidates := make([]models.Candidate, 0, len(answer.Candidates))

	for _, c := range answer.Candidates {
		label := strings.TrimSpace(c.Label)
		if label == "" {
			return nil, errMalformed.Fmt("empty label")
		}

		if c.Confidence == nil || *c.Confidence < 0 || *c.Confidence > 1 {
			return nil, errMalformed.Fmt("confidence out of range for " + label)
		}

		candidates = append(candidates, models.Candidate{
			Label:      label,
			Project:    strings.TrimSpace(c.Project),
			Source:     models.SourceOnline,
			Confidence: clamp(*c.Confidence),
		})
	}

	if len(candidates) == 0 {
		return nil, errMalformed.Fmt("no candidates")
	}

	candidates = dedupe(candidates)
	Sort(candidates)

	return candidates, nil
}
