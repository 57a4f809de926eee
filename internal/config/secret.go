package config

import (
	"fmt"
	"os"
	"strings"

	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

const (
	secretEnvPrefix  = "env:"
	secretFilePrefix = "file:"
)

// ResolveSecret turns an "env:NAME" or "file:/path" reference into its value.
// Any other value is returned unchanged.
func ResolveSecret(value string) (string, error) {
	switch {
	case strings.HasPrefix(value, secretEnvPrefix):
		name := strings.TrimPrefix(value, secretEnvPrefix)
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return "", fmt.Errorf("%w: secret env %s is not set", appErr.ErrConfiguration, name)
		}
		return v, nil
	case strings.HasPrefix(value, secretFilePrefix):
		path := strings.TrimPrefix(value, secretFilePrefix)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%w: read secret file %s: %v", appErr.ErrConfiguration, path, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return value, nil
}

func (c *Config) resolveSecrets() error {
	for _, field := range []*string{&c.Database.DSN, &c.Database.Password, &c.Server.JWTSecret} {
		v, err := ResolveSecret(*field)
		if err != nil {
			return err
		}
		*field = v
	}
	for i := range c.AI.Embedders {
		if err := resolveMap(c.AI.Embedders[i].Data); err != nil {
			return err
		}
	}
	for i := range c.AI.Generators {
		if err := resolveMap(c.AI.Generators[i].Data); err != nil {
			return err
		}
	}
	if data, ok := c.Source.Data.(map[string]interface{}); ok {
		if err := resolveMap(data); err != nil {
			return err
		}
	}
	return nil
}

func resolveMap(data map[string]interface{}) error {
	for key, value := range data {
		s, ok := value.(string)
		if !ok {
			continue
		}
		v, err := ResolveSecret(s)
		if err != nil {
			return err
		}
		data[key] = v
	}
	return nil
}
