package delimiter

import (
	"testing"

	"github.com/spf13/viper"
)

func TestViperKey(t *testing.T) {
	tests := []struct {
		name     string
		keys     []string
		expected string
	}{
		{
			name:     "single key",
			keys:     []string{"profiles"},
			expected: "profiles",
		},
		{
			name:     "two keys",
			keys:     []string{"http", "port"},
			expected: "http::port",
		},
		{
			name:     "nested model key with dots",
			keys:     []string{"profiles", "default", "options", "models", "claude-sonnet-4.5"},
			expected: "profiles::default::options::models::claude-sonnet-4.5",
		},
		{
			name:     "empty keys",
			keys:     []string{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ViperKey(tt.keys...)
			if result != tt.expected {
				t.Errorf("ViperKey(%v) = %q, want %q", tt.keys, result, tt.expected)
			}
		})
	}
}

func TestViperKeyDelimiterDefault(t *testing.T) {
	if ViperKeyDelimiter != "::" {
		t.Errorf("ViperKeyDelimiter = %q, want %q", ViperKeyDelimiter, "::")
	}
}

func TestViperIntegration(t *testing.T) {
	// init() must have installed the delimiter on the global viper instance,
	// so a key containing dots stays a single map level.
	key := ViperKey("profiles", "default", "models", "claude-sonnet-4.5")
	viper.Set(key, "qwen-max")

	if val := viper.GetString(key); val != "qwen-max" {
		t.Errorf("viper.GetString(%q) = %q, want %q", key, val, "qwen-max")
	}

	profilesMap := viper.GetStringMap("profiles")
	if profilesMap == nil {
		t.Fatal("viper.GetStringMap(\"profiles\") returned nil")
	}
	defaultMap, ok := profilesMap["default"].(map[string]interface{})
	if !ok {
		t.Fatalf("profiles['default'] is not a map[string]interface{}, got %T", profilesMap["default"])
	}
	modelsMap, ok := defaultMap["models"].(map[string]interface{})
	if !ok {
		t.Fatalf("default['models'] is not a map[string]interface{}, got %T", defaultMap["models"])
	}
	if modelsMap["claude-sonnet-4.5"] != "qwen-max" {
		t.Errorf("models['claude-sonnet-4.5'] = %v, want %v", modelsMap["claude-sonnet-4.5"], "qwen-max")
	}
}
