package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dgellow/x-connect/internal/crypto"
	"github.com/dgellow/x-connect/internal/log"
	"github.com/dgellow/x-connect/internal/storage"
)

const (
	DefaultName            = "x-connect"
	DefaultAddr            = ":8080"
	DefaultConnectionPage  = "/x-connection"
	DefaultSessionCacheTTL = 30 * time.Second
	DefaultCleanupInterval = time.Hour
)

// secretFields lists the config paths that must be $env references
var secretFields = [][]string{
	{"x", "clientSecret"},
	{"auth", "supabaseAnonKey"},
	{"encryptionKey"},
}

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse processes raw config JSON the same way Load does
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, SupportedVersionPrefix) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	for _, path := range secretFields {
		value, exists := lookupPath(rawConfig, path)
		if !exists {
			continue
		}
		name := strings.Join(path, ".")
		// Check if it's a string (bad) or a map (good - env ref)
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s must use environment variable reference for security", name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", name)
			}
		}
	}
	return nil
}

func lookupPath(m map[string]any, path []string) (any, bool) {
	var current any = m
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// ApplyDefaults fills optional fields left empty
func ApplyDefaults(config *Config) {
	if config.Server.Name == "" {
		config.Server.Name = DefaultName
	}
	if config.Server.Addr == "" {
		config.Server.Addr = DefaultAddr
	}
	if config.Server.ConnectionPage == "" {
		config.Server.ConnectionPage = DefaultConnectionPage
	}
	if config.Auth.SessionCacheTTL == 0 {
		config.Auth.SessionCacheTTL = DefaultSessionCacheTTL
	}
	if config.Storage.Kind == "" {
		config.Storage.Kind = StorageKindMemory
	}
	if config.Storage.TokenCollection == "" {
		config.Storage.TokenCollection = storage.DefaultTokenCollection
	}
	if config.Storage.AuditCollection == "" {
		config.Storage.AuditCollection = storage.DefaultAuditCollection
	}
	if config.Storage.CleanupInterval == 0 {
		config.Storage.CleanupInterval = DefaultCleanupInterval
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.BaseURL == "" {
		return fmt.Errorf("server.baseURL is required")
	}
	if _, err := url.ParseRequestURI(config.Server.BaseURL); err != nil {
		return fmt.Errorf("server.baseURL is not a valid URL: %w", err)
	}
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if !strings.HasPrefix(config.Server.ConnectionPage, "/") {
		return fmt.Errorf("server.connectionPage must be an absolute path")
	}

	if config.Auth.SupabaseURL == "" {
		return fmt.Errorf("auth.supabaseUrl is required")
	}
	if config.Auth.SupabaseAnonKey == "" {
		return fmt.Errorf("auth.supabaseAnonKey is required")
	}

	if err := validateXConfig(&config.X); err != nil {
		return fmt.Errorf("x config: %w", err)
	}

	if err := crypto.NewTokenCipher(string(config.EncryptionKey)).Validate(); err != nil {
		return fmt.Errorf("encryptionKey: %w. Generate with: openssl rand -base64 32", err)
	}

	switch config.Storage.Kind {
	case StorageKindMemory:
		log.LogWarn("Using memory storage - X connections are lost on restart")
	case StorageKindFirestore:
		if config.Storage.GCPProject == "" {
			return fmt.Errorf("storage.gcpProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("storage.kind must be 'memory' or 'firestore', got '%s'", config.Storage.Kind)
	}

	if config.Storage.AuditRetention > 0 && config.Storage.CleanupInterval > config.Storage.AuditRetention {
		log.LogWarn("Audit cleanup interval is greater than audit retention")
	}

	return nil
}

func validateXConfig(x *XConfig) error {
	if x.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if x.ClientSecret == "" {
		return fmt.Errorf("clientSecret is required")
	}
	if x.RedirectURI == "" {
		return fmt.Errorf("redirectUri is required")
	}
	if _, err := url.ParseRequestURI(x.RedirectURI); err != nil {
		return fmt.Errorf("redirectUri is not a valid URL: %w", err)
	}
	return nil
}
