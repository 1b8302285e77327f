// Package profile provides a profile-based configuration system that lets
// different model-name patterns route to different upstream endpoints.
package profile

import (
	"errors"
	"strings"
)

var (
	ErrNoProfileMatched  = errors.New("no profile matched for the given model")
	ErrNoProfilesDefined = errors.New("no profiles defined in configuration")
)

// Profile is one matched configuration: which models it serves and how to
// reach the upstream provider for them.
type Profile struct {
	Name     string          `yaml:"name" json:"name" mapstructure:"name"`
	Models   []string        `yaml:"models" json:"models" mapstructure:"models"`
	Upstream *UpstreamConfig `yaml:"upstream" json:"upstream" mapstructure:"upstream"`
	Options  *OptionsConfig  `yaml:"options" json:"options" mapstructure:"options"`
}

// UpstreamConfig locates the OpenAI-compatible chat-completions endpoint.
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" json:"api_key" mapstructure:"api_key"`
}

// OptionsConfig contains general options for request processing.
type OptionsConfig struct {
	Models           map[string]string `yaml:"models" json:"models" mapstructure:"models"`
	MinMaxTokens     int               `yaml:"min_max_tokens" json:"min_max_tokens" mapstructure:"min_max_tokens"`
	ImageInputTokens int64             `yaml:"image_input_tokens" json:"image_input_tokens" mapstructure:"image_input_tokens"`
}

// ProfileManager holds profiles in priority order and matches model names
// against them.
type ProfileManager struct {
	profiles []*Profile
}

func NewProfileManager() *ProfileManager {
	return &ProfileManager{
		profiles: make([]*Profile, 0),
	}
}

func (pm *ProfileManager) AddProfile(p *Profile) {
	pm.profiles = append(pm.profiles, p)
}

// Match finds the first profile whose model patterns match the given model
// name. Returns ErrNoProfileMatched when nothing matches.
func (pm *ProfileManager) Match(model string) (*Profile, error) {
	if len(pm.profiles) == 0 {
		return nil, ErrNoProfilesDefined
	}
	for _, p := range pm.profiles {
		for _, pattern := range p.Models {
			if matchPattern(pattern, model) {
				return p, nil
			}
		}
	}
	return nil, ErrNoProfileMatched
}

func (pm *ProfileManager) Profiles() []*Profile {
	return pm.profiles
}

// matchPattern supports "*" (everything), "prefix*" (prefix match), and exact
// matches.
func matchPattern(pattern, model string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(model, prefix)
	}
	return pattern == model
}

// GetUpstream safely gets the upstream config.
func (p *Profile) GetUpstream() *UpstreamConfig {
	if p == nil {
		return nil
	}
	return p.Upstream
}

// GetOptions safely gets the options config.
func (p *Profile) GetOptions() *OptionsConfig {
	if p == nil {
		return nil
	}
	return p.Options
}

// GetBaseURL safely gets the upstream base URL with a default.
func (u *UpstreamConfig) GetBaseURL() string {
	if u == nil || u.BaseURL == "" {
		return "https://api.openai.com"
	}
	return strings.TrimSuffix(u.BaseURL, "/")
}

// GetAPIKey safely gets the upstream API key.
func (u *UpstreamConfig) GetAPIKey() string {
	if u == nil {
		return ""
	}
	return u.APIKey
}

// GetModels safely gets the model rename map.
func (o *OptionsConfig) GetModels() map[string]string {
	if o == nil || o.Models == nil {
		return make(map[string]string)
	}
	return o.Models
}

// GetMinMaxTokens safely gets the minimum max_tokens floor.
func (o *OptionsConfig) GetMinMaxTokens() int {
	if o == nil {
		return 0
	}
	return o.MinMaxTokens
}

// GetImageInputTokens safely gets the per-image input-token estimate used for
// stripped image blocks.
func (o *OptionsConfig) GetImageInputTokens() int64 {
	if o == nil || o.ImageInputTokens == 0 {
		return 1500
	}
	return o.ImageInputTokens
}
