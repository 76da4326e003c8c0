package util

import (
	"strings"

	"github.com/spf13/viper"
)

// SetKeyValue sets a config value from an environment style key like
// DATABASE_POOL_SIZE. Underscores match either a nesting dot or an
// underscore inside a known key.
func SetKeyValue(vi *viper.Viper, key, value string) {
	key = strings.ToLower(key)

	for _, k := range vi.AllKeys() {
		if strings.ReplaceAll(k, ".", "_") == key {
			vi.Set(k, value)
			return
		}
	}
	vi.Set(key, value)
}
