package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
)

type sentMedia struct {
	chatID  int64
	media   domain.Media
	caption string
}

type fakeMessenger struct {
	mu      sync.Mutex
	texts   map[int64][]string
	photos  []sentMedia
	voices  []sentMedia
	actions []string
	files   map[string][]byte
}

func newMessenger() *fakeMessenger {
	return &fakeMessenger{texts: map[int64][]string{}, files: map[string][]byte{}}
}

func (m *fakeMessenger) SendText(_ context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts[chatID] = append(m.texts[chatID], text)
	return nil
}

func (m *fakeMessenger) SendPhoto(_ context.Context, chatID int64, photo domain.Media, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.photos = append(m.photos, sentMedia{chatID, photo, caption})
	return nil
}

func (m *fakeMessenger) SendVoice(_ context.Context, chatID int64, voice domain.Media, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voices = append(m.voices, sentMedia{chatID, voice, caption})
	return nil
}

func (m *fakeMessenger) SendChatAction(_ context.Context, _ int64, action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
	return nil
}

func (m *fakeMessenger) DownloadFile(_ context.Context, fileID string, maxBytes int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[fileID]
	if !ok {
		return nil, errors.New("file not found")
	}
	if int64(len(data)) > maxBytes {
		return nil, domain.ErrTooLarge
	}
	return data, nil
}

func (m *fakeMessenger) textsFor(chatID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts[chatID]...)
}

func (m *fakeMessenger) last(chatID int64) string {
	ts := m.textsFor(chatID)
	if len(ts) == 0 {
		return ""
	}
	return ts[len(ts)-1]
}

// chatFunc adapts a function to ChatChain.
type chatFunc func(ctx context.Context, req domain.ChatRequest) (string, error)

func (f chatFunc) Invoke(ctx context.Context, req domain.ChatRequest) (string, error) { return f(ctx, req) }

type mediaFunc func(ctx context.Context, in string) (domain.Media, error)

func (f mediaFunc) Invoke(ctx context.Context, in string) (domain.Media, error) { return f(ctx, in) }

type searchFunc func(ctx context.Context, q string) (domain.SearchResponse, error)

func (f searchFunc) Invoke(ctx context.Context, q string) (domain.SearchResponse, error) {
	return f(ctx, q)
}

func staticChat(answer string) chatFunc {
	return func(context.Context, domain.ChatRequest) (string, error) { return answer, nil }
}
