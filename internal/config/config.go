package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	AliExpress AliExpressConfig `yaml:"aliexpress"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	Preview    PreviewConfig    `yaml:"preview"`
	Promo      PromoConfig      `yaml:"promo"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Message    MessageConfig    `yaml:"message"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"PORT" default:"5000"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"2m"`
}

// StorageConfig holds local persistence configuration.
type StorageConfig struct {
	DataDir        string `yaml:"data_dir" envconfig:"DATA_DIR" default:"./data"`
	ScheduledFile  string `yaml:"scheduled_file" envconfig:"SCHEDULED_POSTS_FILE" default:"scheduled_posts.json"`
	SavedPostsDSN  string `yaml:"saved_posts_dsn" envconfig:"DATABASE_URL" default:"saved_posts.db"`
	SavedPostLimit int    `yaml:"saved_post_limit" envconfig:"SAVED_POST_LIMIT" default:"50"`
}

// AliExpressConfig holds the affiliate API configuration.
type AliExpressConfig struct {
	AppKey     string        `yaml:"app_key" envconfig:"ALIEXPRESS_APP_KEY"`
	AppSecret  string        `yaml:"app_secret" envconfig:"ALIEXPRESS_APP_SECRET"`
	Endpoint   string        `yaml:"endpoint" envconfig:"ALIEXPRESS_ENDPOINT" default:"https://api-sg.aliexpress.com/sync"`
	Currency   string        `yaml:"currency" envconfig:"ALIEXPRESS_CURRENCY" default:"USD"`
	Language   string        `yaml:"language" envconfig:"ALIEXPRESS_LANGUAGE" default:"EN"`
	TrackingID string        `yaml:"tracking_id" envconfig:"ALIEXPRESS_TRACKING_ID" default:"default"`
	CallDelay  time.Duration `yaml:"call_delay" envconfig:"ALIEXPRESS_CALL_DELAY" default:"1100ms"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"ALIEXPRESS_TIMEOUT" default:"15s"`
}

// ResolverConfig holds redirect-chase configuration.
type ResolverConfig struct {
	MaxHops          int           `yaml:"max_hops" envconfig:"RESOLVER_MAX_HOPS" default:"10"`
	HopTimeout       time.Duration `yaml:"hop_timeout" envconfig:"RESOLVER_HOP_TIMEOUT" default:"10s"`
	ShortenerTimeout time.Duration `yaml:"shortener_timeout" envconfig:"RESOLVER_SHORTENER_TIMEOUT" default:"15s"`
	ShortenerHosts   []string      `yaml:"shortener_hosts" envconfig:"RESOLVER_SHORTENER_HOSTS" default:"s.click.aliexpress.com"`
	UserAgent        string        `yaml:"user_agent" envconfig:"RESOLVER_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"`
}

// PreviewConfig holds preview source configuration.
type PreviewConfig struct {
	MicrolinkURL       string        `yaml:"microlink_url" envconfig:"PREVIEW_MICROLINK_URL" default:"https://api.microlink.io"`
	MicrolinkTimeout   time.Duration `yaml:"microlink_timeout" envconfig:"PREVIEW_MICROLINK_TIMEOUT" default:"20s"`
	LinkPreviewURL     string        `yaml:"linkpreview_url" envconfig:"PREVIEW_LINKPREVIEW_URL" default:"https://linkpreview.xyz/api/get-meta-tags"`
	LinkPreviewTimeout time.Duration `yaml:"linkpreview_timeout" envconfig:"PREVIEW_LINKPREVIEW_TIMEOUT" default:"15s"`
	ScrapeHosts        []string      `yaml:"scrape_hosts" envconfig:"PREVIEW_SCRAPE_HOSTS" default:"https://www.aliexpress.com,https://ar.aliexpress.com"`
	ScrapeTimeout      time.Duration `yaml:"scrape_timeout" envconfig:"PREVIEW_SCRAPE_TIMEOUT" default:"20s"`
	TitleMinLength     int           `yaml:"title_min_length" envconfig:"PREVIEW_TITLE_MIN_LENGTH" default:"10"`
	TitleBlocklist     []string      `yaml:"title_blocklist" envconfig:"PREVIEW_TITLE_BLOCKLIST" default:"AliExpress,Smarter Shopping"`
	UserAgent          string        `yaml:"user_agent" envconfig:"PREVIEW_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"`
}

// PromoConfig holds promotion-link endpoint configuration.
type PromoConfig struct {
	Endpoint      string        `yaml:"endpoint" envconfig:"PROMO_ENDPOINT" default:"https://portals.aliexpress.com/tools/linkGenerate/generatePromotionLink.htm"`
	TrackID       string        `yaml:"track_id" envconfig:"PROMO_TRACK_ID" default:"default"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"PROMO_TIMEOUT" default:"15s"`
	DefaultCookie string        `yaml:"default_cookie" envconfig:"COOK"`
}

// TelegramConfig holds delivery configuration and the env-level fallback credentials.
type TelegramConfig struct {
	Transport  string        `yaml:"transport" envconfig:"TELEGRAM_TRANSPORT" default:"botapi"`
	BaseURL    string        `yaml:"base_url" envconfig:"TELEGRAM_BASE_URL" default:"https://api.telegram.org"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"TELEGRAM_TIMEOUT" default:"30s"`
	BotToken   string        `yaml:"bot_token" envconfig:"TELEGRAM_BOT_TOKEN"`
	ChannelID  string        `yaml:"channel_id" envconfig:"TELEGRAM_CHANNEL_ID"`
	ChannelID2 string        `yaml:"channel_id_2" envconfig:"TELEGRAM_CHANNEL_ID_2"`
	AppID      int           `yaml:"app_id" envconfig:"TELEGRAM_APP_ID"`
	AppHash    string        `yaml:"app_hash" envconfig:"TELEGRAM_APP_HASH"`
	SessionDir string        `yaml:"session_dir" envconfig:"TELEGRAM_SESSION_DIR" default:"./data/sessions"`
}

// SchedulerConfig holds deferred publish configuration.
type SchedulerConfig struct {
	Enabled      bool          `yaml:"enabled" envconfig:"SCHEDULER_ENABLED" default:"true"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"SCHEDULER_POLL_INTERVAL" default:"30s"`
	SnapshotKey  string        `yaml:"snapshot_key" envconfig:"SCHEDULER_SNAPSHOT_KEY"`
}

// AssistantConfig holds text-rewrite assistant configuration.
type AssistantConfig struct {
	APIKeys string        `yaml:"api_keys" envconfig:"GEMINI_API_KEY"`
	BaseURL string        `yaml:"base_url" envconfig:"GEMINI_BASE_URL" default:"https://generativelanguage.googleapis.com/v1beta"`
	Model   string        `yaml:"model" envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash-lite"`
	Timeout time.Duration `yaml:"timeout" envconfig:"GEMINI_TIMEOUT" default:"20s"`
}

// Keys splits the comma separated key list.
func (c AssistantConfig) Keys() []string {
	var keys []string
	for _, k := range strings.Split(c.APIKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// MessageConfig holds the default caption template for published deals.
type MessageConfig struct {
	Prefix     string `yaml:"prefix" envconfig:"MESSAGE_PREFIX" default:"📢 Deal on"`
	SalePrice  string `yaml:"sale_price" envconfig:"MESSAGE_SALE_PRICE" default:"✅ Price after discount:"`
	LinkText   string `yaml:"link_text" envconfig:"MESSAGE_LINK_TEXT" default:"📌 Buy here:"`
	CouponText string `yaml:"coupon_text" envconfig:"MESSAGE_COUPON_TEXT" default:"🎁 Coupon:"`
	Footer     string `yaml:"footer" envconfig:"MESSAGE_FOOTER"`
	BotLink    string `yaml:"bot_link" envconfig:"MESSAGE_BOT_LINK"`
	Hashtags   string `yaml:"hashtags" envconfig:"MESSAGE_HASHTAGS" default:"#Aliexpress"`
}

// Load reads configuration from .env, file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Server.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	switch c.Telegram.Transport {
	case "botapi":
	case "mtproto":
		if c.Telegram.AppID == 0 || c.Telegram.AppHash == "" {
			return fmt.Errorf("TELEGRAM_APP_ID and TELEGRAM_APP_HASH are required for mtproto transport")
		}
	default:
		return fmt.Errorf("unknown TELEGRAM_TRANSPORT %q", c.Telegram.Transport)
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("SCHEDULER_POLL_INTERVAL must be positive")
	}
	if c.Resolver.MaxHops <= 0 {
		return fmt.Errorf("RESOLVER_MAX_HOPS must be positive")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HasSigningSecret reports whether the affiliate API can be called.
func (c *AliExpressConfig) HasSigningSecret() bool {
	return c.AppKey != "" && c.AppSecret != ""
}
