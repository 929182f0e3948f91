package advice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/founoun2/FollowMe/pkg/config"
	"github.com/founoun2/FollowMe/pkg/errutil"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const geminiEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

// Advice is the campaign guidance returned to creators before they commit a
// budget.
type Advice struct {
	Platform       string   `json:"platform"`
	TargetAudience string   `json:"target_audience"`
	Hashtags       []string `json:"hashtags"`
	ViralityScore  int64    `json:"virality_score"`
	Reasoning      string   `json:"reasoning"`
}

// fallbackAdvice is served whenever the model is unreachable or returns
// something unparseable. Advice is a nice-to-have; it must never fail a
// request.
var fallbackAdvice = Advice{
	Platform:       "Instagram",
	TargetAudience: "General Audience (Fallback)",
	Hashtags:       []string{"#viral", "#fyp", "#trending"},
	ViralityScore:  5,
	Reasoning:      "Could not connect to AI service. Defaulting to generic advice.",
}

type Service struct {
	cfg    *config.Config
	client *http.Client
}

type ServiceParams struct {
	fx.In
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		cfg:    p.Config,
		client: &http.Client{Timeout: p.Config.Gemini.Timeout},
	}
}

type AdviceRequest struct {
	Platform    string `json:"platform"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Country     string `json:"country"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Generate asks the model for campaign advice and falls back to a canned
// answer on any failure.
func (s *Service) Generate(ctx context.Context, req AdviceRequest) (*Advice, error) {
	if req.Platform == "" {
		return nil, errutil.BadRequest("platform is required", nil)
	}

	if s.cfg.Gemini.ApiKey == "" {
		fallback := fallbackAdvice
		return &fallback, nil
	}

	advice, err := s.generate(ctx, req)
	if err != nil {
		zap.L().Warn("advice generation failed, serving fallback", zap.Error(err))
		fallback := fallbackAdvice
		return &fallback, nil
	}

	return advice, nil
}

func (s *Service) generate(ctx context.Context, req AdviceRequest) (*Advice, error) {
	prompt := fmt.Sprintf(
		"You are a social media growth strategist. A creator is planning a %s campaign of type %q targeting %q. Description: %q. "+
			"Respond with ONLY a JSON object with keys: platform (string), target_audience (string), hashtags (array of strings), virality_score (integer 1-10), reasoning (string).",
		req.Platform, req.Type, req.Country, req.Description,
	)

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf(geminiEndpoint, s.cfg.Gemini.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", s.cfg.Gemini.ApiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model returned status %d", resp.StatusCode)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("model returned no candidates")
	}

	return parseAdvice(out.Candidates[0].Content.Parts[0].Text)
}

// parseAdvice tolerates markdown fences around the JSON the model returns.
func parseAdvice(text string) (*Advice, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var advice Advice
	if err := json.Unmarshal([]byte(text), &advice); err != nil {
		return nil, fmt.Errorf("failed to parse model output: %w", err)
	}
	if advice.ViralityScore < 1 {
		advice.ViralityScore = 1
	}
	if advice.ViralityScore > 10 {
		advice.ViralityScore = 10
	}

	return &advice, nil
}
