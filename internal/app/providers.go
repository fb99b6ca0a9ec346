package app

import (
	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/ai/real"
	"github.com/fairyhunter13/ai-relay-bot/internal/config"
	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/keypool"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/providerchain"
)

// Chain names double as capability keys in the provider layout file.
const (
	ChainChat   = "chat"
	ChainVision = "vision"
	ChainImage  = "image"
	ChainVoice  = "voice"
	ChainSearch = "search"
)

// Chains holds one fallback chain per capability.
type Chains struct {
	Chat   *providerchain.Chain[domain.ChatRequest, string]
	Vision *providerchain.Chain[domain.ChatRequest, string]
	Image  *providerchain.Chain[string, domain.Media]
	Voice  *providerchain.Chain[string, domain.Media]
	Search *providerchain.Chain[string, domain.SearchResponse]
}

// Pools are the credential pools, one per keyed vendor.
type Pools struct {
	Google      *keypool.Pool
	Groq        *keypool.Pool
	HuggingFace *keypool.Pool
	ElevenLabs  *keypool.Pool
	Tavily      *keypool.Pool
}

// BuildPools parses every configured key list.
func BuildPools(cfg config.Config) Pools {
	attempts, delay := cfg.GetKeyPoolRetry()
	retry := keypool.WithSingleKeyRetry(attempts, delay)
	return Pools{
		Google:      keypool.New("google", cfg.GoogleAPIKeys, retry),
		Groq:        keypool.New("groq", cfg.GroqAPIKeys, retry),
		HuggingFace: keypool.New("huggingface", cfg.HuggingFaceAPIKeys, retry),
		ElevenLabs:  keypool.New("elevenlabs", cfg.ElevenLabsAPIKeys, retry),
		Tavily:      keypool.New("tavily", cfg.TavilyAPIKeys, retry),
	}
}

// BuildChains wires the vendor adapters into chains, honouring the layout's
// order and disabled list.
func BuildChains(cfg config.Config, layout config.ProviderLayout, pools Pools) Chains {
	textHTTP := real.NewHTTPClient(cfg.RequestTimeout)
	mediaHTTP := real.NewHTTPClient(cfg.MediaTimeout)
	opts := []providerchain.Option{providerchain.WithBreaker(cfg.BreakerThreshold, cfg.BreakerRecovery)}

	groq := real.NewOpenAIChat("groq", cfg.GroqBaseURL, cfg.GroqModel, pools.Groq, textHTTP)
	gemini := real.NewGemini(cfg.GeminiBaseURL, cfg.GeminiModel, pools.Google, mediaHTTP)
	pollText := real.NewPollinationsText(cfg.PollinationsTextURL, textHTTP)
	pollImage := real.NewPollinationsImage(cfg.PollinationsImageURL, mediaHTTP, cfg.MinMediaBytes)
	hf := real.NewHuggingFaceImage(cfg.HuggingFaceBaseURL, cfg.HuggingFaceModel, pools.HuggingFace, mediaHTTP, cfg.MinMediaBytes)
	gtts := real.NewGoogleTTS(cfg.GoogleTTSURL, cfg.TTSLang, mediaHTTP)
	eleven := real.NewElevenLabs(cfg.ElevenLabsBaseURL, cfg.ElevenLabsVoiceID, pools.ElevenLabs, mediaHTTP)
	tavily := real.NewTavily(cfg.TavilyBaseURL, pools.Tavily, textHTTP)
	ddg := real.NewDuckDuckGo(cfg.DuckDuckGoURL, textHTTP)

	chat := arrange(layout, ChainChat, []providerchain.Provider[domain.ChatRequest, string]{
		{Name: groq.Name(), Enabled: groq.Enabled(), Call: groq.Chat},
		{Name: gemini.Name(), Enabled: gemini.Enabled(), Call: gemini.Chat},
		{Name: pollText.Name(), Enabled: true, Call: pollText.Chat},
	})
	vision := arrange(layout, ChainVision, []providerchain.Provider[domain.ChatRequest, string]{
		{Name: gemini.Name(), Enabled: gemini.Enabled(), Call: gemini.Chat},
	})
	image := arrange(layout, ChainImage, []providerchain.Provider[string, domain.Media]{
		{Name: pollImage.Name(), Enabled: true, Call: pollImage.Generate},
		{Name: hf.Name(), Enabled: hf.Enabled(), Call: hf.Generate},
	})
	voice := arrange(layout, ChainVoice, []providerchain.Provider[string, domain.Media]{
		{Name: gtts.Name(), Enabled: true, Call: gtts.Synthesize},
		{Name: eleven.Name(), Enabled: eleven.Enabled(), Call: eleven.Synthesize},
	})
	search := arrange(layout, ChainSearch, []providerchain.Provider[string, domain.SearchResponse]{
		{Name: tavily.Name(), Enabled: tavily.Enabled(), Call: tavily.Search},
		{Name: ddg.Name(), Enabled: true, Call: ddg.Search},
	})

	return Chains{
		Chat:   providerchain.New(ChainChat, providerchain.Priority, chat, opts...),
		Vision: providerchain.New(ChainVision, providerchain.Priority, vision, opts...),
		Image:  providerchain.New(ChainImage, providerchain.Rotating, image, opts...),
		Voice:  providerchain.New(ChainVoice, providerchain.Rotating, voice, opts...),
		Search: providerchain.New(ChainSearch, providerchain.Rotating, search, opts...),
	}
}

// arrange reorders providers per the layout and switches off disabled ones.
func arrange[In, Out any](layout config.ProviderLayout, capability string, providers []providerchain.Provider[In, Out]) []providerchain.Provider[In, Out] {
	byName := make(map[string]providerchain.Provider[In, Out], len(providers))
	defaults := make([]string, 0, len(providers))
	for _, p := range providers {
		byName[p.Name] = p
		defaults = append(defaults, p.Name)
	}
	out := make([]providerchain.Provider[In, Out], 0, len(providers))
	for _, name := range layout.Order(capability, defaults) {
		p := byName[name]
		if layout.IsDisabled(name) {
			p.Enabled = false
		}
		out = append(out, p)
	}
	return out
}
