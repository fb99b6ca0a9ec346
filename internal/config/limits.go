package config

import "time"

// Feature names used for per-user rate limiting.
const (
	FeatureImage  = "image"
	FeatureVoice  = "voice"
	FeatureSearch = "search"
	FeatureCheck  = "check"
)

// FeatureLimit is the configured allowance of one feature per window.
type FeatureLimit struct {
	Limit  int
	Window time.Duration
}

// FeatureLimits returns the per-feature limits. Non-positive limits are omitted,
// leaving that feature unlimited.
func (c Config) FeatureLimits() map[string]FeatureLimit {
	out := make(map[string]FeatureLimit, 4)
	add := func(name string, n int) {
		if n > 0 {
			out[name] = FeatureLimit{Limit: n, Window: c.RateLimitWindow}
		}
	}
	add(FeatureImage, c.RateLimitImage)
	add(FeatureVoice, c.RateLimitVoice)
	add(FeatureSearch, c.RateLimitSearch)
	add(FeatureCheck, c.RateLimitCheck)
	return out
}

// GetKeyPoolRetry returns single-key retry settings for the current environment.
// Test runs use a short delay so suites stay fast.
func (c Config) GetKeyPoolRetry() (attempts int, delay time.Duration) {
	if c.IsTest() {
		return c.KeyPoolSingleKeyAttempts, 10 * time.Millisecond
	}
	return c.KeyPoolSingleKeyAttempts, c.KeyPoolRetryDelay
}

// GetReminderReinsertDelay returns the delay before re-adding a daily reminder.
func (c Config) GetReminderReinsertDelay() time.Duration {
	if c.IsTest() {
		return 0
	}
	return c.ReminderReinsertDelay
}
