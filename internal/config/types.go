package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SupportedVersionPrefix is the config version family this build accepts.
const SupportedVersionPrefix = "v1"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the storage backend
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindFirestore StorageKind = "firestore"
)

// ServerConfig configures the HTTP listener and redirects
type ServerConfig struct {
	BaseURL        string   `json:"baseURL"`
	Addr           string   `json:"addr"`
	Name           string   `json:"name"`
	AllowedOrigins []string `json:"allowedOrigins"`
	// ConnectionPage is the path users are sent back to after the OAuth
	// callback. Relative to BaseURL.
	ConnectionPage string `json:"connectionPage"`
}

// AuthConfig configures the managed auth service that issues user sessions
type AuthConfig struct {
	SupabaseURL     string        `json:"supabaseUrl"`
	SupabaseAnonKey Secret        `json:"supabaseAnonKey"`
	SessionCacheTTL time.Duration `json:"sessionCacheTtl"`
}

// XConfig holds the X (Twitter) OAuth application registration
type XConfig struct {
	ClientID         string   `json:"clientId"`
	ClientSecret     Secret   `json:"clientSecret"`
	RedirectURI      string   `json:"redirectUri"`
	Scopes           []string `json:"scopes,omitempty"`
	AuthorizationURL string   `json:"authorizationUrl,omitempty"`
	TokenURL         string   `json:"tokenUrl,omitempty"`
	ProfileURL       string   `json:"profileUrl,omitempty"`
}

// StorageConfig configures where connections and audit logs live
type StorageConfig struct {
	Kind              StorageKind   `json:"kind"`
	GCPProject        string        `json:"gcpProject,omitempty"`
	FirestoreDatabase string        `json:"firestoreDatabase,omitempty"`
	TokenCollection   string        `json:"tokenCollection,omitempty"`
	AuditCollection   string        `json:"auditCollection,omitempty"`
	AuditRetention    time.Duration `json:"auditRetention,omitempty"` // 0 keeps audit logs forever
	CleanupInterval   time.Duration `json:"cleanupInterval,omitempty"`
}

// Config represents the config structure with resolved values.
//
// Environment variable references using {"$env": "VAR_NAME"} syntax are
// resolved at load time. Secrets must use them.
type Config struct {
	Version       string        `json:"version"`
	Server        ServerConfig  `json:"server"`
	Auth          AuthConfig    `json:"auth"`
	X             XConfig       `json:"x"`
	Storage       StorageConfig `json:"storage"`
	EncryptionKey Secret        `json:"encryptionKey"`
}

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference
func ParseConfigValue(raw json.RawMessage) (string, error) {
	// Try plain string first
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}

	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

// ParseConfigValueSlice parses a slice that may contain references
func ParseConfigValueSlice(raw []json.RawMessage) ([]string, error) {
	values := make([]string, len(raw))
	for i, item := range raw {
		parsed, err := ParseConfigValue(item)
		if err != nil {
			return nil, fmt.Errorf("parsing item %d: %w", i, err)
		}
		values[i] = parsed
	}
	return values, nil
}
