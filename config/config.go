package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderAzure  = "azure"
	ProviderGemini = "gemini"

	DefaultAPIVersion   = "2023-12-01-preview"
	DefaultGeminiModel  = "gemini-2.0-flash-001"
	DefaultAddr         = ":8080"
	DefaultLanguageCode = "en-US"
	DefaultSystemPrompt = "You are a supportive and emotionally intelligent fitness and wellness companion named Project Backbone Coach."
)

var (
	ErrMissingEndpoint   = errors.New("azure endpoint url is required")
	ErrMissingDeployment = errors.New("azure deployment name is required")
	ErrMissingAPIKey     = errors.New("api key is required")
	ErrUnknownProvider   = errors.New("unknown completion provider")
)

type Config struct {
	Provider string  `yaml:"provider"`
	Azure    Azure   `yaml:"azure"`
	Gemini   Gemini  `yaml:"gemini"`
	Session  Session `yaml:"session"`
	Server   Server  `yaml:"server"`
	Voice    Voice   `yaml:"voice"`
}

// Azure holds the opaque values used to address a chat-completions deployment.
type Azure struct {
	EndpointURL    string        `yaml:"endpoint_url"`
	DeploymentName string        `yaml:"deployment_name"`
	APIKey         string        `yaml:"api_key"`
	APIVersion     string        `yaml:"api_version"`
	Timeout        time.Duration `yaml:"timeout"`
}

type Gemini struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type Session struct {
	SystemPrompt string `yaml:"system_prompt"`
	StrictRoles  bool   `yaml:"strict_roles"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Voice struct {
	Enabled      bool   `yaml:"enabled"`
	LanguageCode string `yaml:"language_code"`
}

// Load reads .env (when present), then the YAML file named by
// COACH_CONFIG_FILE, then environment overrides, and fills defaults.
func Load() (Config, error) {
	_ = gotenv.Load()

	var cfg Config
	if path := os.Getenv("COACH_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Provider, "COACH_PROVIDER")
	setString(&c.Azure.EndpointURL, "AZURE_OPENAI_ENDPOINT")
	setString(&c.Azure.DeploymentName, "AZURE_OPENAI_DEPLOYMENT")
	setString(&c.Azure.APIKey, "AZURE_OPENAI_KEY")
	setString(&c.Azure.APIVersion, "AZURE_OPENAI_API_VERSION")
	setString(&c.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&c.Gemini.Model, "GEMINI_MODEL")
	setString(&c.Session.SystemPrompt, "COACH_SYSTEM_PROMPT")
	setString(&c.Server.Addr, "COACH_ADDR")
	setString(&c.Voice.LanguageCode, "COACH_VOICE_LANGUAGE")

	if v := os.Getenv("COACH_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing COACH_REQUEST_TIMEOUT: %w", err)
		}
		c.Azure.Timeout = d
		c.Gemini.Timeout = d
	}
	if err := setBool(&c.Session.StrictRoles, "COACH_STRICT_ROLES"); err != nil {
		return err
	}
	if err := setBool(&c.Voice.Enabled, "COACH_VOICE_ENABLED"); err != nil {
		return err
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderAzure
	}
	if c.Azure.APIVersion == "" {
		c.Azure.APIVersion = DefaultAPIVersion
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = DefaultGeminiModel
	}
	if c.Session.SystemPrompt == "" {
		c.Session.SystemPrompt = DefaultSystemPrompt
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Voice.LanguageCode == "" {
		c.Voice.LanguageCode = DefaultLanguageCode
	}
}

// Validate checks that the selected provider has everything it needs.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderAzure:
		if c.Azure.EndpointURL == "" {
			return ErrMissingEndpoint
		}
		if c.Azure.DeploymentName == "" {
			return ErrMissingDeployment
		}
		if c.Azure.APIKey == "" {
			return fmt.Errorf("azure: %w", ErrMissingAPIKey)
		}
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("gemini: %w", ErrMissingAPIKey)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider)
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*dst = b
	return nil
}
