package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/ai-relay-bot/internal/config"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/providerchain"
)

func stub(name string, enabled bool) providerchain.Provider[string, string] {
	return providerchain.Provider[string, string]{
		Name:    name,
		Enabled: enabled,
		Call:    func(context.Context, string) (string, error) { return name, nil },
	}
}

func names(ps []providerchain.Provider[string, string]) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func TestArrange(t *testing.T) {
	providers := []providerchain.Provider[string, string]{stub("a", true), stub("b", true), stub("c", false)}

	t.Run("defaults", func(t *testing.T) {
		got := arrange(config.ProviderLayout{}, "chat", providers)
		assert.Equal(t, []string{"a", "b", "c"}, names(got))
	})
	t.Run("reordered and disabled", func(t *testing.T) {
		layout := config.ProviderLayout{
			Chains:   map[string][]string{"chat": {"c", "b"}},
			Disabled: []string{"b"},
		}
		got := arrange(layout, "chat", providers)
		assert.Equal(t, []string{"c", "b", "a"}, names(got))
		assert.False(t, got[0].Enabled)
		assert.False(t, got[1].Enabled)
		assert.True(t, got[2].Enabled)
	})
}

func TestBuildChains_EnabledFollowsKeys(t *testing.T) {
	cfg := config.Config{AppEnv: "test", KeyPoolSingleKeyAttempts: 1, BreakerThreshold: 3}

	chains := BuildChains(cfg, config.ProviderLayout{}, BuildPools(cfg))
	assert.Equal(t, []string{"pollinations"}, chains.Chat.Enabled())
	assert.Empty(t, chains.Vision.Enabled())
	assert.Equal(t, []string{"pollinations"}, chains.Image.Enabled())
	assert.Equal(t, []string{"google-tts"}, chains.Voice.Enabled())
	assert.Equal(t, []string{"duckduckgo"}, chains.Search.Enabled())

	cfg.GroqAPIKeys = "g1,g2"
	cfg.GoogleAPIKeys = "k1"
	cfg.TavilyAPIKeys = "t1"
	layout := config.ProviderLayout{
		Chains:   map[string][]string{"chat": {"gemini"}},
		Disabled: []string{"duckduckgo"},
	}
	chains = BuildChains(cfg, layout, BuildPools(cfg))
	assert.Equal(t, []string{"gemini", "groq", "pollinations"}, chains.Chat.Enabled())
	assert.Equal(t, []string{"gemini"}, chains.Vision.Enabled())
	assert.Equal(t, []string{"tavily"}, chains.Search.Enabled())
	assert.Equal(t, providerchain.Priority.String(), "priority")
}

func TestBuildPools(t *testing.T) {
	pools := BuildPools(config.Config{GroqAPIKeys: "a, b;c", KeyPoolSingleKeyAttempts: 2})
	assert.Equal(t, 3, pools.Groq.Len())
	assert.False(t, pools.ElevenLabs.Configured())
	assert.Equal(t, "groq", pools.Groq.Name())
}
