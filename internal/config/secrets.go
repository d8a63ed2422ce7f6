package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SecretsFile holds generated secrets inside the data directory.
const SecretsFile = "secrets.json"

type secrets struct {
	APIToken string `json:"api_token"`
}

// APIToken returns the bearer token guarding the HTTP API. An explicit
// TOOLSHELF_API_TOKEN wins; otherwise the token stored in the data
// directory is used, generating one on first use.
func APIToken(cfg Config) (string, error) {
	if cfg.Server.APIToken != "" {
		return cfg.Server.APIToken, nil
	}
	return storedToken(filepath.Join(cfg.Storage.DataDir, SecretsFile))
}

func storedToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var s secrets
		if err := json.Unmarshal(data, &s); err != nil {
			return "", fmt.Errorf("parsing secrets file: %w", err)
		}
		if s.APIToken != "" {
			return s.APIToken, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("reading secrets file: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets{APIToken: token}, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return "", fmt.Errorf("writing secrets file: %w", err)
	}
	return token, nil
}
