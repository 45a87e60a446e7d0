package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"log": map[string]interface{}{
			"level":  "info",
			"format": "text",
		},
		"storage": map[string]interface{}{
			"driver": "file",
			"path":   "~/.medremind",
			"dsn":    "",
			"key":    "reminders.v1",
		},
		"scheduler": map[string]interface{}{
			"driver":     "memory",
			"buffer":     64,
			"tick":       "15s",
			"permission": "granted",
		},
		"redis": map[string]interface{}{
			"addr":     "localhost:6379",
			"password": "",
			"db":       0,
			"prefix":   "medremind",
		},
		"reconcile": map[string]interface{}{
			"mode":     "heuristic",
			"on_start": true,
		},
		"notify": map[string]interface{}{
			"desktop":         true,
			"rate_per_minute": 6,
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}

func GetDefaultConfigPath() string {
	return "~/.medremind/config.yaml"
}
