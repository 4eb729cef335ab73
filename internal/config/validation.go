package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ValidateBytes(data), nil
}

// ValidateBytes validates raw config JSON without resolving env vars
func ValidateBytes(data []byte) *ValidationResult {
	result := &ValidationResult{}

	// Check JSON syntax
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result
	}

	// Check for bash-style syntax
	checkBashStyleSyntax(rawConfig, "", result)

	// Check version
	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": \"%s\"", SupportedVersionPrefix)
	} else if !strings.HasPrefix(version, SupportedVersionPrefix) {
		result.addError("version", "unsupported version '%s' - use '%s' or '%s-<variant>'", version, SupportedVersionPrefix, SupportedVersionPrefix)
	}

	validateServerStructure(rawConfig, result)
	validateAuthStructure(rawConfig, result)
	validateXStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)

	if value, ok := rawConfig["encryptionKey"]; !ok {
		result.addError("encryptionKey", "encryptionKey is required. Hint: {\"$env\": \"ENCRYPTION_KEY\"} holding a base64 encoded 32-byte key")
	} else if verr := validateEnvVarReference(value, "encryptionKey", "encryptionKey"); verr != nil {
		result.Errors = append(result.Errors, *verr)
	}

	return result
}

// validateServerStructure checks the server configuration structure
func validateServerStructure(rawConfig map[string]any, result *ValidationResult) {
	server, ok := rawConfig["server"].(map[string]any)
	if !ok {
		result.addError("server", "server field is required and must be an object")
		return
	}

	if _, ok := server["baseURL"]; !ok {
		result.addError("server.baseURL", "baseURL is required. Example: \"https://app.example.com\"")
	}
	if _, ok := server["addr"]; !ok {
		result.addWarning("server.addr", "addr not set, defaulting to %q", DefaultAddr)
	}
	if page, ok := server["connectionPage"].(string); ok && !strings.HasPrefix(page, "/") {
		result.addError("server.connectionPage", "connectionPage must be an absolute path like %q", DefaultConnectionPage)
	}
	if origins, ok := server["allowedOrigins"].([]any); ok {
		for i, origin := range origins {
			if s, ok := origin.(string); ok && s == "*" {
				result.addWarning(fmt.Sprintf("server.allowedOrigins[%d]", i), "wildcard origin allows any site to call the API with credentials")
			}
		}
	}
}

// validateAuthStructure checks the session auth service configuration
func validateAuthStructure(rawConfig map[string]any, result *ValidationResult) {
	auth, ok := rawConfig["auth"].(map[string]any)
	if !ok {
		result.addError("auth", "auth field is required and must be an object")
		return
	}

	if _, ok := auth["supabaseUrl"]; !ok {
		result.addError("auth.supabaseUrl", "supabaseUrl is required. Example: \"https://project.supabase.co\"")
	}
	if key, ok := auth["supabaseAnonKey"]; !ok {
		result.addError("auth.supabaseAnonKey", "supabaseAnonKey is required")
	} else if verr := validateEnvVarReference(key, "supabaseAnonKey", "auth.supabaseAnonKey"); verr != nil {
		result.Errors = append(result.Errors, *verr)
	}
	validateDurationField(auth, "sessionCacheTtl", "auth.sessionCacheTtl", result)
}

// validateXStructure checks the X OAuth application configuration
func validateXStructure(rawConfig map[string]any, result *ValidationResult) {
	x, ok := rawConfig["x"].(map[string]any)
	if !ok {
		result.addError("x", "x field is required and must be an object")
		return
	}

	for _, field := range []string{"clientId", "redirectUri"} {
		if _, ok := x[field]; !ok {
			result.addError("x."+field, "%s is required", field)
		}
	}
	if secret, ok := x["clientSecret"]; !ok {
		result.addError("x.clientSecret", "clientSecret is required")
	} else if verr := validateEnvVarReference(secret, "clientSecret", "x.clientSecret"); verr != nil {
		result.Errors = append(result.Errors, *verr)
	}

	if scopes, ok := x["scopes"].([]any); ok {
		hasOffline := false
		for _, scope := range scopes {
			if s, ok := scope.(string); ok && s == "offline.access" {
				hasOffline = true
			}
		}
		if !hasOffline {
			result.addWarning("x.scopes", "offline.access is not requested - X will not issue refresh tokens")
		}
	}
}

// validateStorageStructure checks the storage backend configuration
func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		result.addWarning("storage", "storage not configured, defaulting to memory (connections are lost on restart)")
		return
	}

	kind, _ := storage["kind"].(string)
	switch StorageKind(kind) {
	case StorageKindMemory, "":
		result.addWarning("storage.kind", "memory storage loses connections on restart")
	case StorageKindFirestore:
		if _, ok := storage["gcpProject"]; !ok {
			result.addError("storage.gcpProject", "gcpProject is required when using firestore storage")
		}
	default:
		result.addError("storage.kind", "kind must be 'memory' or 'firestore', got '%s'", kind)
	}

	validateDurationField(storage, "auditRetention", "storage.auditRetention", result)
	validateDurationField(storage, "cleanupInterval", "storage.cleanupInterval", result)
}

func validateDurationField(obj map[string]any, key, path string, result *ValidationResult) {
	value, ok := obj[key]
	if !ok {
		return
	}
	s, ok := value.(string)
	if !ok {
		result.addError(path, "%s must be a duration string like \"30s\"", key)
		return
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		result.addError(path, "invalid duration '%s': %v", s, err)
		return
	}
	if d < 0 {
		result.addError(path, "%s cannot be negative", key)
	}
}

// validateEnvVarReference validates that a field uses proper env var reference format
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		// Check if it looks like a bash-style env var
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion and ensures security", v, matches[1]),
			}
		}
		// Plain string value; never echo it back, it is a secret
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		// Valid env reference
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI and ensures unambiguous parsing", match, varName)
		}
	case map[string]any:
		// Skip if this is already an env ref
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}

		for key, val := range v {
			newPath := path
			if newPath == "" {
				newPath = key
			} else {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
