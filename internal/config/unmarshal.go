package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// resolveString resolves a possibly-referenced value into dst. Absent values
// leave dst untouched.
func resolveString(raw json.RawMessage, name string, dst *string) error {
	if raw == nil {
		return nil
	}
	parsed, err := ParseConfigValue(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = parsed
	return nil
}

func resolveSecret(raw json.RawMessage, name string, dst *Secret) error {
	var value string
	if err := resolveString(raw, name, &value); err != nil {
		return err
	}
	if raw != nil {
		*dst = Secret(value)
	}
	return nil
}

func parseDuration(s, name string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	if d < 0 {
		return fmt.Errorf("%s cannot be negative", name)
	}
	*dst = d
	return nil
}

// UnmarshalJSON implements custom unmarshaling for Config
func (c *Config) UnmarshalJSON(data []byte) error {
	type rawConfig struct {
		Version       string          `json:"version"`
		Server        ServerConfig    `json:"server"`
		Auth          AuthConfig      `json:"auth"`
		X             XConfig         `json:"x"`
		Storage       StorageConfig   `json:"storage"`
		EncryptionKey json.RawMessage `json:"encryptionKey"`
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Version = raw.Version
	c.Server = raw.Server
	c.Auth = raw.Auth
	c.X = raw.X
	c.Storage = raw.Storage

	return resolveSecret(raw.EncryptionKey, "encryptionKey", &c.EncryptionKey)
}

// UnmarshalJSON implements custom unmarshaling for ServerConfig
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	type rawServer struct {
		BaseURL        json.RawMessage   `json:"baseURL"`
		Addr           json.RawMessage   `json:"addr"`
		Name           string            `json:"name"`
		AllowedOrigins []json.RawMessage `json:"allowedOrigins"`
		ConnectionPage string            `json:"connectionPage"`
	}

	var raw rawServer
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Name = raw.Name
	s.ConnectionPage = raw.ConnectionPage

	if err := resolveString(raw.BaseURL, "baseURL", &s.BaseURL); err != nil {
		return err
	}
	if err := resolveString(raw.Addr, "addr", &s.Addr); err != nil {
		return err
	}
	if raw.AllowedOrigins != nil {
		origins, err := ParseConfigValueSlice(raw.AllowedOrigins)
		if err != nil {
			return fmt.Errorf("parsing allowedOrigins: %w", err)
		}
		s.AllowedOrigins = origins
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for AuthConfig
func (a *AuthConfig) UnmarshalJSON(data []byte) error {
	type rawAuth struct {
		SupabaseURL     json.RawMessage `json:"supabaseUrl"`
		SupabaseAnonKey json.RawMessage `json:"supabaseAnonKey"`
		SessionCacheTTL string          `json:"sessionCacheTtl"`
	}

	var raw rawAuth
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if err := resolveString(raw.SupabaseURL, "supabaseUrl", &a.SupabaseURL); err != nil {
		return err
	}
	if err := resolveSecret(raw.SupabaseAnonKey, "supabaseAnonKey", &a.SupabaseAnonKey); err != nil {
		return err
	}
	return parseDuration(raw.SessionCacheTTL, "sessionCacheTtl", &a.SessionCacheTTL)
}

// UnmarshalJSON implements custom unmarshaling for XConfig
func (x *XConfig) UnmarshalJSON(data []byte) error {
	type rawX struct {
		ClientID         json.RawMessage `json:"clientId"`
		ClientSecret     json.RawMessage `json:"clientSecret"`
		RedirectURI      json.RawMessage `json:"redirectUri"`
		Scopes           []string        `json:"scopes,omitempty"`
		AuthorizationURL string          `json:"authorizationUrl,omitempty"`
		TokenURL         string          `json:"tokenUrl,omitempty"`
		ProfileURL       string          `json:"profileUrl,omitempty"`
	}

	var raw rawX
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	x.Scopes = raw.Scopes
	x.AuthorizationURL = raw.AuthorizationURL
	x.TokenURL = raw.TokenURL
	x.ProfileURL = raw.ProfileURL

	if err := resolveString(raw.ClientID, "clientId", &x.ClientID); err != nil {
		return err
	}
	if err := resolveSecret(raw.ClientSecret, "clientSecret", &x.ClientSecret); err != nil {
		return err
	}
	return resolveString(raw.RedirectURI, "redirectUri", &x.RedirectURI)
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	type rawStorage struct {
		Kind              StorageKind     `json:"kind"`
		GCPProject        json.RawMessage `json:"gcpProject"`
		FirestoreDatabase string          `json:"firestoreDatabase,omitempty"`
		TokenCollection   string          `json:"tokenCollection,omitempty"`
		AuditCollection   string          `json:"auditCollection,omitempty"`
		AuditRetention    string          `json:"auditRetention,omitempty"`
		CleanupInterval   string          `json:"cleanupInterval,omitempty"`
	}

	var raw rawStorage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	s.FirestoreDatabase = raw.FirestoreDatabase
	s.TokenCollection = raw.TokenCollection
	s.AuditCollection = raw.AuditCollection

	if err := resolveString(raw.GCPProject, "gcpProject", &s.GCPProject); err != nil {
		return err
	}
	if err := parseDuration(raw.AuditRetention, "auditRetention", &s.AuditRetention); err != nil {
		return err
	}
	return parseDuration(raw.CleanupInterval, "cleanupInterval", &s.CleanupInterval)
}
