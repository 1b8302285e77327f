package profile

import (
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/eastwind-labs/anthropic-bridge/pkg/utils/delimiter"
)

// RootConfig represents the root configuration structure.
type RootConfig struct {
	Profiles map[string]*Profile `yaml:"profiles" json:"profiles" mapstructure:"profiles"`
	HTTP     *HTTPConfig         `yaml:"http" json:"http" mapstructure:"http"`
	Snapshot string              `yaml:"snapshot" json:"snapshot" mapstructure:"snapshot"`
}

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	Host string `yaml:"host" json:"host" mapstructure:"host"`
	Port int    `yaml:"port" json:"port" mapstructure:"port"`
}

// envVarRegex matches environment variable references like ${VAR_NAME}
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnv expands environment variable references in a string.
// Supports ${VAR_NAME} syntax.
func ExpandEnv(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := match[2 : len(match)-1]
		if value, ok := os.LookupEnv(varName); ok {
			return value
		}
		return match // Return original if not found
	})
}

// LoadFromViper loads profiles from a viper instance.
// The profiles section should be structured as:
//
//	profiles:
//	  profile-name:
//	    models: ["pattern*"]
//	    upstream:
//	      base_url: "https://api.example.com"
//	      api_key: "${EXAMPLE_API_KEY}"
func LoadFromViper(v *viper.Viper) (*ProfileManager, error) {
	pm := NewProfileManager()
	profilesMap := v.GetStringMap("profiles")
	if len(profilesMap) == 0 {
		return nil, ErrNoProfilesDefined
	}
	// Get profile names in order from the raw config
	// Since viper doesn't preserve order, we need to read the raw config
	profileOrder := getProfileOrder(v)
	for _, name := range profileOrder {
		key := delimiter.ViperKey("profiles", name)
		p := &Profile{
			Name:     name,
			Models:   v.GetStringSlice(delimiter.ViperKey(key, "models")),
			Upstream: loadUpstreamConfig(v, delimiter.ViperKey(key, "upstream")),
			Options:  loadOptionsConfig(v, delimiter.ViperKey(key, "options")),
		}
		// Expand environment variables in API keys and URLs
		if p.Upstream != nil {
			p.Upstream.BaseURL = ExpandEnv(p.Upstream.BaseURL)
			p.Upstream.APIKey = ExpandEnv(p.Upstream.APIKey)
		}
		pm.AddProfile(p)
	}
	return pm, nil
}

// getProfileOrder attempts to get profile names in their definition order.
// Falls back to map iteration order if order cannot be determined.
func getProfileOrder(v *viper.Viper) []string {
	// Try to get order from the config file
	configFile := v.ConfigFileUsed()
	if configFile != "" {
		if order, err := extractProfileOrderFromFile(configFile); err == nil && len(order) > 0 {
			return order
		}
	}
	// Fallback to map keys (unordered)
	profilesMap := v.GetStringMap("profiles")
	names := make([]string, 0, len(profilesMap))
	for name := range profilesMap {
		names = append(names, name)
	}
	return names
}

// extractProfileOrderFromFile reads the config file and extracts profile names in order.
func extractProfileOrderFromFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Profiles yaml.Node `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.Profiles.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("profiles is not a mapping")
	}
	var names []string
	// In a mapping node, content alternates between key and value
	for i := 0; i < len(raw.Profiles.Content); i += 2 {
		if raw.Profiles.Content[i].Kind == yaml.ScalarNode {
			names = append(names, raw.Profiles.Content[i].Value)
		}
	}
	return names, nil
}

func loadUpstreamConfig(v *viper.Viper, key string) *UpstreamConfig {
	if !v.IsSet(key) {
		return nil
	}
	return &UpstreamConfig{
		BaseURL: v.GetString(delimiter.ViperKey(key, "base_url")),
		APIKey:  v.GetString(delimiter.ViperKey(key, "api_key")),
	}
}

func loadOptionsConfig(v *viper.Viper, key string) *OptionsConfig {
	if !v.IsSet(key) {
		return nil
	}
	return &OptionsConfig{
		Models:           v.GetStringMapString(delimiter.ViperKey(key, "models")),
		MinMaxTokens:     v.GetInt(delimiter.ViperKey(key, "min_max_tokens")),
		ImageInputTokens: v.GetInt64(delimiter.ViperKey(key, "image_input_tokens")),
	}
}

// GetHTTPConfig returns the HTTP configuration from viper.
func GetHTTPConfig(v *viper.Viper) *HTTPConfig {
	return &HTTPConfig{
		Host: v.GetString(delimiter.ViperKey("http", "host")),
		Port: v.GetInt(delimiter.ViperKey("http", "port")),
	}
}

// GetSnapshotConfig returns the snapshot configuration from viper.
func GetSnapshotConfig(v *viper.Viper) string {
	return v.GetString("snapshot")
}
