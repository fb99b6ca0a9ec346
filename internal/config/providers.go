package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProviderLayout overrides provider order per capability and disables
// individual providers. It is loaded from PROVIDERS_FILE.
//
//	chains:
//	  chat: [gemini, groq, pollinations]
//	  image: [huggingface, pollinations]
//	disabled: [elevenlabs]
type ProviderLayout struct {
	Chains   map[string][]string `yaml:"chains"`
	Disabled []string            `yaml:"disabled"`
}

// LoadProviderLayout reads a provider layout file. An empty path yields an empty layout.
func LoadProviderLayout(path string) (ProviderLayout, error) {
	var layout ProviderLayout
	if strings.TrimSpace(path) == "" {
		return layout, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return layout, fmt.Errorf("op=config.LoadProviderLayout: %w", err)
	}
	// #nosec G304 -- operator supplied configuration path
	content, err := os.ReadFile(absPath)
	if err != nil {
		return layout, fmt.Errorf("op=config.LoadProviderLayout: %w", err)
	}
	if err := yaml.Unmarshal(content, &layout); err != nil {
		return layout, fmt.Errorf("op=config.LoadProviderLayout: parse %s: %w", absPath, err)
	}
	for k, names := range layout.Chains {
		for i := range names {
			names[i] = strings.ToLower(strings.TrimSpace(names[i]))
		}
		layout.Chains[strings.ToLower(k)] = names
	}
	for i := range layout.Disabled {
		layout.Disabled[i] = strings.ToLower(strings.TrimSpace(layout.Disabled[i]))
	}
	return layout, nil
}

// Order returns defaults rearranged by the configured order for capability.
// Names listed in the file come first; unlisted defaults keep their relative
// order after them; unknown names are ignored.
func (l ProviderLayout) Order(capability string, defaults []string) []string {
	configured := l.Chains[strings.ToLower(capability)]
	if len(configured) == 0 {
		return slices.Clone(defaults)
	}
	out := make([]string, 0, len(defaults))
	for _, name := range configured {
		if slices.Contains(defaults, name) && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	for _, name := range defaults {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// IsDisabled reports whether name was switched off in the layout file.
func (l ProviderLayout) IsDisabled(name string) bool {
	return slices.Contains(l.Disabled, strings.ToLower(name))
}
