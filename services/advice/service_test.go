package advice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/founoun2/FollowMe/pkg/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestGenerateWithoutAPIKeyFallsBack(t *testing.T) {
	cfg := &config.Config{}
	cfg.Gemini.Timeout = time.Second
	svc := NewService(ServiceParams{Config: cfg})

	advice, err := svc.Generate(context.Background(), AdviceRequest{Platform: "Instagram"})
	require.NoError(t, err)
	require.Equal(t, "General Audience (Fallback)", advice.TargetAudience)
	require.Equal(t, []string{"#viral", "#fyp", "#trending"}, advice.Hashtags)
	require.Equal(t, int64(5), advice.ViralityScore)
	require.Equal(t, "Could not connect to AI service. Defaulting to generic advice.", advice.Reasoning)
}

func TestGenerateRequiresPlatform(t *testing.T) {
	cfg := &config.Config{}
	svc := NewService(ServiceParams{Config: cfg})

	_, err := svc.Generate(context.Background(), AdviceRequest{})
	require.Error(t, err)
}

func TestParseAdvice(t *testing.T) {
	advice, err := parseAdvice(`{"platform":"TikTok","target_audience":"Gen Z creators","hashtags":["#dance"],"virality_score":8,"reasoning":"Short-form dance content spreads fast."}`)
	require.NoError(t, err)
	require.Equal(t, "TikTok", advice.Platform)
	require.Equal(t, int64(8), advice.ViralityScore)
	require.Equal(t, "Short-form dance content spreads fast.", advice.Reasoning)
}

func TestParseAdviceStripsMarkdownFences(t *testing.T) {
	raw := "```json\n{\"platform\":\"YouTube\",\"target_audience\":\"Gamers\",\"hashtags\":[\"#gaming\"],\"virality_score\":6,\"reasoning\":\"Niche but loyal audience.\"}\n```"

	advice, err := parseAdvice(raw)
	require.NoError(t, err)
	require.Equal(t, "YouTube", advice.Platform)
	require.Equal(t, []string{"#gaming"}, advice.Hashtags)
	require.Equal(t, int64(6), advice.ViralityScore)
}

func TestParseAdviceClampsViralityScore(t *testing.T) {
	advice, err := parseAdvice(`{"platform":"TikTok","virality_score":0}`)
	require.NoError(t, err)
	require.Equal(t, int64(1), advice.ViralityScore)

	advice, err = parseAdvice(`{"platform":"TikTok","virality_score":42}`)
	require.NoError(t, err)
	require.Equal(t, int64(10), advice.ViralityScore)
}

func TestParseAdviceRejectsGarbage(t *testing.T) {
	_, err := parseAdvice("I think you should post more often")
	require.Error(t, err)
}
