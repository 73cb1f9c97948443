package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/sirupsen/logrus"

	"github.com/v0idhrt/radar/internal/config"
	"github.com/v0idhrt/radar/internal/models"
	"github.com/v0idhrt/radar/internal/textutil"
)

const analysisMaxItems = 10

// NewsAnalysis is the model's read on a batch of collected news.
type NewsAnalysis struct {
	CompanyName string  `json:"company_name"`
	Sentiment   string  `json:"sentiment"`
	Confidence  float64 `json:"confidence"`
	Summary     string  `json:"summary"`
	Forecast    string  `json:"forecast"`
}

// AnalysisService asks a chat model to summarise collected news and estimate
// sentiment for a company. It is optional: without an API key every call
// returns ErrAnalysisDisabled.
type AnalysisService struct {
	client   openai.Client
	model    string
	enabled  bool
	limiters *ServiceRateLimiters
	logger   *logrus.Logger
}

// ErrAnalysisDisabled signals that no analysis API key is configured.
var ErrAnalysisDisabled = fmt.Errorf("analysis service is not configured")

func NewAnalysisService(cfg config.AnalysisConfig, limiters *ServiceRateLimiters, logger *logrus.Logger) *AnalysisService {
	svc := &AnalysisService{
		model:    cfg.Model,
		enabled:  cfg.OpenAIAPIKey != "",
		limiters: limiters,
		logger:   logger,
	}
	if svc.enabled {
		svc.client = openai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey))
	}
	return svc
}

func (s *AnalysisService) Enabled() bool { return s.enabled }

// Analyze submits up to analysisMaxItems of the most relevant items and
// parses the model's JSON verdict.
func (s *AnalysisService) Analyze(ctx context.Context, companyName string, items []models.NewsItem) (*NewsAnalysis, error) {
	if !s.enabled {
		return nil, ErrAnalysisDisabled
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no news items to analyze")
	}

	if !s.limiters.Acquire(ctx, "openai", true) {
		return nil, fmt.Errorf("analysis rate limit exceeded")
	}

	prompt := buildAnalysisPrompt(companyName, items)

	response, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       s.model,
		Messages:    analysisMessages(prompt),
		Temperature: openai.Float(0.2),
		MaxTokens:   openai.Int(600),
	})
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response from model")
	}

	analysis, err := parseAnalysis(response.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	analysis.CompanyName = companyName

	s.logger.WithFields(logrus.Fields{
		"company":   companyName,
		"sentiment": analysis.Sentiment,
	}).Info("News analysis complete")

	return analysis, nil
}

// analysisMessages wraps the prompt into the chat message unions the API
// expects: a fixed system instruction plus the user prompt.
func analysisMessages(prompt string) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String("You are a financial news analyst. Respond only with the requested JSON object."),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(prompt),
				},
			},
		},
	}
}

func buildAnalysisPrompt(companyName string, items []models.NewsItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following recent news about %s.\n\n", companyName)

	limit := len(items)
	if limit > analysisMaxItems {
		limit = analysisMaxItems
	}
	for i := 0; i < limit; i++ {
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", i+1, items[i].Title, textutil.Truncate(items[i].Content, 500))
	}

	b.WriteString(`Respond with JSON: {"sentiment": "positive|negative|neutral", "confidence": 0.0-1.0, "summary": "2-3 sentences", "forecast": "likely near-term price impact"}`)
	return b.String()
}

// parseAnalysis tolerates markdown code fences around the JSON body.
func parseAnalysis(content string) (*NewsAnalysis, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var analysis NewsAnalysis
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}
	return &analysis, nil
}
