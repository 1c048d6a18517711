package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/Gobusters/ectoenv"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/joho/godotenv"
)

// Load reads the optional .env files and binds the environment onto Config. Variables already set
// in the process environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		return nil, errkind.Wrap(errkind.InvalidArgument, err, "invalid configuration")
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Brokers returns the configured kafka brokers; empty when kafka is disabled.
func (c *Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}
