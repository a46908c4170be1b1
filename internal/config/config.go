package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	PostgresURL  string        `mapstructure:"POSTGRES_URL"`
	RedisAddr    string        `mapstructure:"REDIS_ADDR"`
	PageCacheTTL time.Duration `mapstructure:"PAGE_CACHE_TTL"`

	OpenAIAPIKey  string  `mapstructure:"OPENAI_API_KEY"`
	LLMBaseURL    string  `mapstructure:"LLM_BASE_URL"`
	LLMModel      string  `mapstructure:"LLM_MODEL"`
	LLMMaxTokens  int     `mapstructure:"LLM_MAX_TOKENS"`
	LLMRatePerSec float64 `mapstructure:"LLM_RATE_PER_SEC"`

	FetchTimeout time.Duration `mapstructure:"FETCH_TIMEOUT"`
	FetchProxies string        `mapstructure:"FETCH_PROXIES"`
	UserAgents   string        `mapstructure:"USER_AGENTS"`

	CategoryConfidenceThreshold float64 `mapstructure:"CATEGORY_CONFIDENCE_THRESHOLD"`
	FallbackExchangeRate        float64 `mapstructure:"FALLBACK_EXCHANGE_RATE"`
	TargetCurrency              string  `mapstructure:"TARGET_CURRENCY"`
	CustomInstructions          string  `mapstructure:"CUSTOM_INSTRUCTIONS"`

	BrowserEnabled bool          `mapstructure:"BROWSER_ENABLED"`
	BrowserTimeout time.Duration `mapstructure:"BROWSER_TIMEOUT"`

	MediaDir     string `mapstructure:"MEDIA_DIR"`
	MediaBaseURL string `mapstructure:"MEDIA_BASE_URL"`
}

const (
	defaultProxies    = "https://api.allorigins.win/raw?url={url}|https://corsproxy.io/?{url}|https://api.codetabs.com/v1/proxy?quest={url}"
	defaultUserAgents = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36|" +
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36|" +
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	return load(viper.New(), ".env")
}

func load(v *viper.Viper, file string) (*Config, error) {
	v.SetConfigFile(file)
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present
	// This allows configuration purely through environment variables in production
	_ = v.ReadInConfig()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("PAGE_CACHE_TTL", "1h")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("LLM_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("LLM_MODEL", "gpt-4o")
	v.SetDefault("LLM_MAX_TOKENS", 4000)
	v.SetDefault("LLM_RATE_PER_SEC", 2.0)
	v.SetDefault("FETCH_TIMEOUT", "15s")
	v.SetDefault("FETCH_PROXIES", defaultProxies)
	v.SetDefault("USER_AGENTS", defaultUserAgents)
	v.SetDefault("CATEGORY_CONFIDENCE_THRESHOLD", 0.7)
	v.SetDefault("FALLBACK_EXCHANGE_RATE", 83.5)
	v.SetDefault("TARGET_CURRENCY", "INR")
	v.SetDefault("CUSTOM_INSTRUCTIONS", "")
	v.SetDefault("BROWSER_ENABLED", false)
	v.SetDefault("BROWSER_TIMEOUT", "30s")
	v.SetDefault("MEDIA_DIR", "./media")
	v.SetDefault("MEDIA_BASE_URL", "http://localhost:8080/media")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ProxyTemplates returns the configured proxy endpoint templates in order.
func (c *Config) ProxyTemplates() []string {
	return splitList(c.FetchProxies)
}

func (c *Config) UserAgentList() []string {
	return splitList(c.UserAgents)
}

// splitList splits on "|" since proxy templates may contain commas.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "|") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
