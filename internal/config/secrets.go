package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret reads a secret value using the *_FILE convention.
// If envName+"_FILE" is set, reads the secret from that file path.
// Otherwise falls back to the value of envName.
// Returns empty string if neither is set.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(envName), nil
}

// resolveSecrets fills credentials from ANIMGRAPH_*_FILE secrets. A file
// secret wins over the value loaded from the config file or plain env.
func (c *Config) resolveSecrets() error {
	targets := []struct {
		env string
		dst *string
	}{
		{"ANIMGRAPH_POSTGRES_PASSWORD", &c.Postgres.Password},
		{"ANIMGRAPH_API_ADMIN_USER", &c.API.AdminUser},
		{"ANIMGRAPH_API_ADMIN_PASS", &c.API.AdminPass},
		{"ANIMGRAPH_API_OPERATOR_USER", &c.API.OperatorUser},
		{"ANIMGRAPH_API_OPERATOR_PASS", &c.API.OperatorPass},
	}
	for _, s := range targets {
		if os.Getenv(s.env+"_FILE") == "" {
			continue
		}
		v, err := ResolveSecret(s.env)
		if err != nil {
			return err
		}
		*s.dst = v
	}
	return nil
}
