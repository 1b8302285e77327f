package delimiter

import (
	"strings"

	"github.com/spf13/viper"
)

// ViperKeyDelimiter is the separator used when building hierarchical Viper
// keys in this project. It defaults to "::" so dots inside YAML map keys
// (model names, for instance) are not split by Viper. init() applies the same
// delimiter to the global Viper instance. It stays a package-level variable so
// it can be overridden at build time:
//
//	go build -ldflags="-X 'github.com/eastwind-labs/anthropic-bridge/pkg/utils/delimiter.ViperKeyDelimiter=__'" ./...
var ViperKeyDelimiter = "::"

func init() {
	viper.SetOptions(viper.KeyDelimiter(ViperKeyDelimiter))
}

// ViperKey joins key segments with the project-wide delimiter.
func ViperKey(keys ...string) string {
	return strings.Join(keys, ViperKeyDelimiter)
}
