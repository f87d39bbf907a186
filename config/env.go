package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. A double underscore descends
// one level: TENANTLOG_QUEUE__BACKEND=rabbitmq sets queue.backend.
const EnvPrefix = "TENANTLOG_"

// ApplyEnvOverrides layers TENANTLOG_* variables (and a local .env file when
// present) over a config struct that was already populated from YAML.
func ApplyEnvOverrides(target any) error {
	_ = godotenv.Load(".env")

	k := koanf.New(".")
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return fmt.Errorf("could not load environment overrides: %w", err)
	}
	if len(k.Keys()) == 0 {
		return nil
	}

	if err := k.UnmarshalWithConf("", target, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return fmt.Errorf("could not apply environment overrides: %w", err)
	}
	return nil
}
