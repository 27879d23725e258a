package sync

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	SessionCookieKey = "SESSION_COOKIE"
	LoopsAPIKeyKey   = "LOOPS_API_KEY"
)

// RequiredConfigurationKeys must be present and non blank in every host configuration.
var RequiredConfigurationKeys = []string{SessionCookieKey, LoopsAPIKeyKey}

// Configuration is the opaque key/value map the host hands to the connector.
type Configuration map[string]string

// LookupEnv makes a Configuration usable for ${KEY:default} expansion in settings files.
func (c Configuration) LookupEnv(key string) (string, bool) {
	v, ok := c[key]
	return v, ok
}

// Validate checks the credentials are present. It never makes a network call.
func (c Configuration) Validate() error {
	var missing []string
	for _, key := range RequiredConfigurationKeys {
		if strings.TrimSpace(c[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s in configuration", ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// String masks credential values so a Configuration is safe to log.
func (c Configuration) String() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		v := c[k]
		if isSecretKey(k) && v != "" {
			v = "****"
		}
		parts[i] = fmt.Sprintf("%s=%s", k, v)
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func isSecretKey(key string) bool {
	for _, k := range RequiredConfigurationKeys {
		if k == key {
			return true
		}
	}
	upper := strings.ToUpper(key)
	return strings.Contains(upper, "KEY") || strings.Contains(upper, "SECRET") ||
		strings.Contains(upper, "COOKIE") || strings.Contains(upper, "PASSWORD") || strings.Contains(upper, "TOKEN")
}

// ParseConfiguration reads a flat JSON object. Non string scalars are kept in their JSON text form.
func ParseConfiguration(json string) (Configuration, error) {
	if !gjson.Valid(json) {
		return nil, fmt.Errorf("%w: configuration is not valid json", ErrConfiguration)
	}
	parsed := gjson.Parse(json)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("%w: configuration must be a json object", ErrConfiguration)
	}
	result := Configuration{}
	parsed.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String {
			result[key.String()] = value.String()
		} else if value.Type != gjson.Null {
			result[key.String()] = value.Raw
		}
		return true
	})
	return result, nil
}

// LoadConfigurationFile reads a host style configuration.json file.
func LoadConfigurationFile(filename string) (Configuration, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read configuration file %w", ErrConfiguration, err)
	}
	return ParseConfiguration(string(b))
}

// LoadConfigurationFromEnvironment reads the whole Configuration from one environment variable
// holding a JSON object.
func LoadConfigurationFromEnvironment(parent string) (Configuration, error) {
	s, ok := os.LookupEnv(parent)
	if !ok || s == "" {
		return nil, fmt.Errorf("%w: env var %s is not set", ErrConfiguration, parent)
	}
	return ParseConfiguration(s)
}

// configOptions holds optional configuration for LoadConfig.
type configOptions struct {
	settings  EmbeddedSettings
	overrides []SettingsFile
}

// ConfigOption is a functional option for configuring LoadConfig.
type ConfigOption func(*configOptions)

// ConfigWithSettings replaces the embedded defaults.
func ConfigWithSettings(settings EmbeddedSettings) ConfigOption {
	return func(o *configOptions) {
		o.settings = settings
	}
}

// ConfigWithOverrides layers settings files over the defaults, later files win.
func ConfigWithOverrides(files ...SettingsFile) ConfigOption {
	return func(o *configOptions) {
		o.overrides = append(o.overrides, files...)
	}
}

// LoadConfig validates the host configuration and resolves the tunables for a run.
func LoadConfig(configuration Configuration, opts ...ConfigOption) (Config, error) {
	options := configOptions{settings: DefaultSettings}
	for _, opt := range opts {
		opt(&options)
	}

	var result Config
	if err := configuration.Validate(); err != nil {
		return result, err
	}

	defaultsSettingsFile, err := options.settings.MustFindDefaultsSettingsFile()
	if err != nil {
		return result, fmt.Errorf("failed to read defaults settings file %w", err)
	}

	sources := append([]SettingsFile{defaultsSettingsFile}, options.overrides...)
	result, err = YAMLConfigUnmarshaler{}.Unmarshal(configuration, sources...)
	if err != nil {
		return result, fmt.Errorf("%w: failed to load settings %w", ErrConfiguration, err)
	}

	result.API.Keys.Session = configuration[SessionCookieKey]
	result.API.Keys.Loops = configuration[LoopsAPIKeyKey]

	return result, result.Validate()
}
