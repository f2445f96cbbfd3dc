package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Category is one named group of RSS feeds. Digest sections follow the
// order categories appear in the config file, so this is a slice, not a map.
type Category struct {
	Name  string   `yaml:"name"`
	Feeds []string `yaml:"feeds"`
}

type feedsFile struct {
	Categories []Category `yaml:"categories"`
}

type Config struct {
	// Ollama settings
	OllamaBaseURL     string
	OllamaModel       string
	OllamaMaxTokens   int
	OllamaTemperature float64

	// Twilio / WhatsApp settings
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	RecipientNumber  string

	// RSS settings
	FeedsConfigPath    string
	Categories         []Category
	FetchTimeout       time.Duration
	MaxArticlesPerFeed int
	FreshnessWindow    time.Duration

	// Scheduling settings
	MorningHour int
	EveningHour int
	Timezone    string

	// Message settings
	MaxSummaryLength int
	MessageCharLimit int

	// Dedup registry
	RegistryPath string

	// Scraper settings
	ScrapeConcurrency int

	// App settings
	Port          string
	Debug         bool
	RetryAttempts int
	RetryDelay    time.Duration
}

// defaultCategories mirrors the feeds the service shipped with; used when no
// feeds.yaml is present.
var defaultCategories = []Category{
	{Name: "technology", Feeds: []string{
		"https://rss.cnn.com/rss/edition_technology.rss",
		"https://feeds.feedburner.com/TechCrunch",
		"https://www.theverge.com/rss/index.xml",
	}},
	{Name: "business", Feeds: []string{
		"https://rss.cnn.com/rss/edition_business.rss",
		"https://feeds.feedburner.com/businessinsider",
		"https://www.ft.com/rss/home/uk",
	}},
	{Name: "science", Feeds: []string{
		"https://rss.cnn.com/rss/edition_space.rss",
		"https://www.sciencenews.org/feed",
		"https://www.nature.com/nature.rss",
	}},
	{Name: "world", Feeds: []string{
		"https://rss.cnn.com/rss/edition_world.rss",
		"https://feeds.bbci.co.uk/news/world/rss.xml",
		"https://www.aljazeera.com/xml/rss/all.xml",
	}},
}

func Load() (*Config, error) {
	cfg := &Config{
		// Default values
		OllamaBaseURL:      "http://localhost:11434",
		OllamaModel:        "gemma3:4b",
		OllamaMaxTokens:    500,
		OllamaTemperature:  0.3,
		FeedsConfigPath:    "configs/feeds.yaml",
		FetchTimeout:       30 * time.Second,
		MaxArticlesPerFeed: 10,
		FreshnessWindow:    36 * time.Hour,
		MorningHour:        8,
		EveningHour:        18,
		Timezone:           "Asia/Calcutta",
		MaxSummaryLength:   200,
		MessageCharLimit:   4096,
		RegistryPath:       "delivered_articles.json",
		ScrapeConcurrency:  5,
		Port:               "8000",
		RetryAttempts:      3,
		RetryDelay:         3 * time.Second,
	}

	// Load from environment
	cfg.OllamaBaseURL = getEnvOrDefault("OLLAMA_BASE_URL", cfg.OllamaBaseURL)
	cfg.OllamaModel = getEnvOrDefault("OLLAMA_MODEL", cfg.OllamaModel)
	cfg.OllamaMaxTokens = getEnvIntOrDefault("OLLAMA_MAX_TOKENS", cfg.OllamaMaxTokens)
	if v := os.Getenv("OLLAMA_TEMPERATURE"); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil && val >= 0 {
			cfg.OllamaTemperature = val
		}
	}

	cfg.TwilioAccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.TwilioAuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.TwilioFromNumber = os.Getenv("TWILIO_PHONE_NUMBER")
	cfg.RecipientNumber = os.Getenv("WHATSAPP_RECIPIENT_NUMBER")

	cfg.FeedsConfigPath = getEnvOrDefault("FEEDS_CONFIG_PATH", cfg.FeedsConfigPath)
	if v := getEnvIntOrDefault("RSS_FETCH_TIMEOUT", 0); v > 0 {
		cfg.FetchTimeout = time.Duration(v) * time.Second
	}
	cfg.MaxArticlesPerFeed = getEnvIntOrDefault("RSS_MAX_ARTICLES_PER_FEED", cfg.MaxArticlesPerFeed)
	if v := getEnvIntOrDefault("FRESHNESS_WINDOW_HOURS", 0); v > 0 {
		cfg.FreshnessWindow = time.Duration(v) * time.Hour
	}

	cfg.MorningHour = getEnvIntOrDefault("MORNING_DELIVERY_HOUR", cfg.MorningHour)
	cfg.EveningHour = getEnvIntOrDefault("EVENING_DELIVERY_HOUR", cfg.EveningHour)
	cfg.Timezone = getEnvOrDefault("DELIVERY_TIMEZONE", cfg.Timezone)

	cfg.MaxSummaryLength = getEnvIntOrDefault("MAX_SUMMARY_LENGTH", cfg.MaxSummaryLength)
	cfg.MessageCharLimit = getEnvIntOrDefault("MESSAGE_CHAR_LIMIT", cfg.MessageCharLimit)
	cfg.RegistryPath = getEnvOrDefault("REGISTRY_PATH", cfg.RegistryPath)
	cfg.ScrapeConcurrency = getEnvIntOrDefault("SCRAPE_CONCURRENCY", cfg.ScrapeConcurrency)
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)

	cfg.RetryAttempts = getEnvIntOrDefault("RETRY_ATTEMPTS", cfg.RetryAttempts)
	if v := getEnvIntOrDefault("RETRY_DELAY_SECONDS", 0); v > 0 {
		cfg.RetryDelay = time.Duration(v) * time.Second
	}

	if debug := os.Getenv("DEBUG"); debug == "true" {
		cfg.Debug = true
	}

	cats, err := loadCategories(cfg.FeedsConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Categories = cats

	return cfg, cfg.Validate()
}

// loadCategories reads the feeds file; a missing file falls back to the
// built-in feed table rather than failing startup.
func loadCategories(path string) ([]Category, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultCategories, nil
		}
		return nil, fmt.Errorf("open feeds config: %w", err)
	}
	defer f.Close()

	var ff feedsFile
	if err := yaml.NewDecoder(f).Decode(&ff); err != nil {
		return nil, fmt.Errorf("parse feeds config %s: %w", path, err)
	}
	if len(ff.Categories) == 0 {
		return defaultCategories, nil
	}
	return ff.Categories, nil
}

func (c *Config) Validate() error {
	if c.MorningHour < 0 || c.MorningHour > 23 {
		return fmt.Errorf("MORNING_DELIVERY_HOUR must be 0-23, got %d", c.MorningHour)
	}
	if c.EveningHour < 0 || c.EveningHour > 23 {
		return fmt.Errorf("EVENING_DELIVERY_HOUR must be 0-23, got %d", c.EveningHour)
	}
	if c.MaxArticlesPerFeed <= 0 {
		return fmt.Errorf("RSS_MAX_ARTICLES_PER_FEED must be positive")
	}
	// both limits must leave room for the "..." truncation marker
	if c.MessageCharLimit < 3 {
		return fmt.Errorf("MESSAGE_CHAR_LIMIT must be at least 3, got %d", c.MessageCharLimit)
	}
	if c.MaxSummaryLength < 3 {
		return fmt.Errorf("MAX_SUMMARY_LENGTH must be at least 3, got %d", c.MaxSummaryLength)
	}
	for _, cat := range c.Categories {
		if cat.Name == "" {
			return fmt.Errorf("feeds config: category with empty name")
		}
		if len(cat.Feeds) == 0 {
			return fmt.Errorf("feeds config: category %q has no feeds", cat.Name)
		}
	}
	return nil
}

// CategoryNames returns category names in configured order.
func (c *Config) CategoryNames() []string {
	names := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		names = append(names, cat.Name)
	}
	return names
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
