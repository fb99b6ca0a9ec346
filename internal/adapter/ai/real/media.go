package real

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/keypool"
	"github.com/fairyhunter13/ai-relay-bot/pkg/textx"
)

const maxMediaBytes = 20 << 20

// googleTTSMaxRunes is the longest text the translate endpoint accepts.
const googleTTSMaxRunes = 200

// checkMedia sniffs data and rejects payloads that are too small or not of
// the expected top-level type ("image" or "audio").
func checkMedia(provider string, data []byte, kind string, minBytes int) (domain.Media, error) {
	if len(data) < minBytes {
		return domain.Media{}, domain.NewProviderError(provider, domain.CategoryContent,
			fmt.Errorf("%w: %d bytes", domain.ErrEmptyResponse, len(data)))
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), kind+"/") {
		return domain.Media{}, domain.NewProviderError(provider, domain.CategoryContent,
			fmt.Errorf("%w: got %s", domain.ErrUnsupportedMedia, mt.String()))
	}
	return domain.Media{Data: data, MIME: mt.String(), Provider: provider}, nil
}

// PollinationsImage renders images from the keyless Pollinations endpoint.
type PollinationsImage struct {
	baseURL  string
	hc       *http.Client
	minBytes int
}

// NewPollinationsImage builds the free image provider.
func NewPollinationsImage(baseURL string, hc *http.Client, minBytes int) *PollinationsImage {
	return &PollinationsImage{baseURL: strings.TrimRight(baseURL, "/"), hc: hc, minBytes: minBytes}
}

func (p *PollinationsImage) Name() string { return "pollinations" }

func (p *PollinationsImage) Generate(ctx context.Context, prompt string) (domain.Media, error) {
	endpoint := p.baseURL + "/prompt/" + url.PathEscape(prompt) + "?nologo=true"
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Media{}, err
	}
	body, _, err := send(ctx, p.hc, p.Name(), r, maxMediaBytes)
	if err != nil {
		return domain.Media{}, err
	}
	return checkMedia(p.Name(), body, "image", p.minBytes)
}

// HuggingFaceImage calls a text-to-image model on the inference API.
type HuggingFaceImage struct {
	baseURL  string
	model    string
	pool     *keypool.Pool
	hc       *http.Client
	minBytes int
}

// NewHuggingFaceImage builds the keyed image provider.
func NewHuggingFaceImage(baseURL, model string, pool *keypool.Pool, hc *http.Client, minBytes int) *HuggingFaceImage {
	return &HuggingFaceImage{baseURL: strings.TrimRight(baseURL, "/"), model: model, pool: pool, hc: hc, minBytes: minBytes}
}

func (h *HuggingFaceImage) Name() string { return "huggingface" }

// Enabled reports whether the provider has credentials.
func (h *HuggingFaceImage) Enabled() bool { return h.pool.Configured() }

func (h *HuggingFaceImage) Generate(ctx context.Context, prompt string) (domain.Media, error) {
	body, _ := json.Marshal(map[string]any{"inputs": prompt})
	return keypool.Execute(ctx, h.pool, func(ctx context.Context, key string) (domain.Media, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/"+h.model, bytes.NewReader(body))
		if err != nil {
			return domain.Media{}, err
		}
		r.Header.Set("Authorization", "Bearer "+key)
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Accept", "image/png")
		data, _, err := send(ctx, h.hc, h.Name(), r, maxMediaBytes)
		if err != nil {
			return domain.Media{}, err
		}
		return checkMedia(h.Name(), data, "image", h.minBytes)
	})
}

// GoogleTTS uses the keyless translate speech endpoint.
type GoogleTTS struct {
	endpoint string
	lang     string
	hc       *http.Client
}

// NewGoogleTTS builds the free voice provider.
func NewGoogleTTS(endpoint, lang string, hc *http.Client) *GoogleTTS {
	return &GoogleTTS{endpoint: endpoint, lang: lang, hc: hc}
}

func (g *GoogleTTS) Name() string { return "google-tts" }

func (g *GoogleTTS) Synthesize(ctx context.Context, text string) (domain.Media, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", g.lang)
	q.Set("q", textx.Truncate(text, googleTTSMaxRunes))
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return domain.Media{}, err
	}
	r.Header.Set("User-Agent", "Mozilla/5.0")
	data, _, err := send(ctx, g.hc, g.Name(), r, maxMediaBytes)
	if err != nil {
		return domain.Media{}, err
	}
	return checkMedia(g.Name(), data, "audio", 1)
}

// ElevenLabs synthesizes speech with a fixed voice.
type ElevenLabs struct {
	baseURL string
	voiceID string
	pool    *keypool.Pool
	hc      *http.Client
}

// NewElevenLabs builds the keyed voice provider.
func NewElevenLabs(baseURL, voiceID string, pool *keypool.Pool, hc *http.Client) *ElevenLabs {
	return &ElevenLabs{baseURL: strings.TrimRight(baseURL, "/"), voiceID: voiceID, pool: pool, hc: hc}
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

// Enabled reports whether the provider has credentials.
func (e *ElevenLabs) Enabled() bool { return e.pool.Configured() }

func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (domain.Media, error) {
	body, _ := json.Marshal(map[string]any{"text": text, "model_id": "eleven_multilingual_v2"})
	endpoint := fmt.Sprintf("%s/text-to-speech/%s", e.baseURL, url.PathEscape(e.voiceID))
	return keypool.Execute(ctx, e.pool, func(ctx context.Context, key string) (domain.Media, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return domain.Media{}, err
		}
		r.Header.Set("xi-api-key", key)
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Accept", "audio/mpeg")
		data, _, err := send(ctx, e.hc, e.Name(), r, maxMediaBytes)
		if err != nil {
			return domain.Media{}, err
		}
		return checkMedia(e.Name(), data, "audio", 1)
	})
}

var (
	_ domain.ImageProvider = (*PollinationsImage)(nil)
	_ domain.ImageProvider = (*HuggingFaceImage)(nil)
	_ domain.VoiceProvider = (*GoogleTTS)(nil)
	_ domain.VoiceProvider = (*ElevenLabs)(nil)
)
