// Package config loads the bot configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	defaultOwnerPrefix      = "Sir. "
	defaultDisclosureSuffix = "\n-# automated reply"
)

const defaultPersona = "You are Jarvis, a calm, capable and slightly dry assistant living in a chat server. " +
	"Keep replies short and useful."

var (
	defaultReactivationPhrases  = []string{"pepper", "tony stark"}
	defaultConfidentialPatterns = []string{"confidential", "private", "staff-only"}
)

type Config struct {
	DiscordToken  string `env:"DISCORD_TOKEN,required=true"`
	OwnerID       string `env:"OWNER_ID,required=true"`
	TriggerWord   string `env:"TRIGGER_WORD,default=jarvis"`
	OpenAIKey     string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	StreamReplies bool   `env:"STREAM_REPLIES,default=false"`

	StoreDriver string `env:"STORE_DRIVER,default=sqlite"`
	SQLitePath  string `env:"SQLITE_PATH,default=jarvis.db"`
	DBHost      string `env:"DB_HOST,default=localhost"`
	DBUser      string `env:"DB_USER"`
	DBPassword  string `env:"DB_PASSWORD"`
	DBName      string `env:"DB_NAME"`
	DBPort      int    `env:"DB_PORT,default=5432"`

	ModLogChannel    string `env:"MOD_LOG_CHANNEL"`
	InviteLogChannel string `env:"INVITE_LOG_CHANNEL"`
	RoleListChannel  string `env:"ROLE_LIST_CHANNEL"`
	RoleRefreshSpec  string `env:"ROLE_REFRESH_SPEC,default=@every 10m"`

	FollowUpWindow time.Duration `env:"FOLLOW_UP_WINDOW,default=60s"`
	AssistCooldown time.Duration `env:"ASSIST_COOLDOWN,default=60s"`
	MemoryWindow   int           `env:"MEMORY_WINDOW,default=6"`
	BanDeleteDays  int           `env:"BAN_DELETE_DAYS,default=1"`
	DefaultMute    time.Duration `env:"DEFAULT_MUTE,default=10m"`

	// Comma-separated lists.
	WatchedKeywordsRaw      string `env:"WATCHED_KEYWORDS"`
	ConfidentialPatternsRaw string `env:"CONFIDENTIAL_PATTERNS"`
	ReactivationPhrasesRaw  string `env:"REACTIVATION_PHRASES"`

	PrimaryGuildPhrase string  `env:"PRIMARY_GUILD_PHRASE,default=this is home"`
	Persona            string  `env:"PERSONA"`
	OwnerPrefixRaw     *string `env:"OWNER_PREFIX"`
	DisclosureRaw      *string `env:"DISCLOSURE_SUFFIX"`
	LogLevel           string  `env:"LOG_LEVEL,default=info"`

	WatchedKeywords      []string
	ConfidentialPatterns []string
	ReactivationPhrases  []string
	OwnerPrefix          string
	DisclosureSuffix     string
}

// Load reads an optional .env file and decodes the environment.
func Load(dotenv ...string) (Config, error) {
	// A missing .env is not an error; the process environment still applies.
	_ = godotenv.Load(dotenv...)

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.DiscordToken) == "" || strings.TrimSpace(c.OwnerID) == "" {
		return fmt.Errorf("config error: DISCORD_TOKEN and OWNER_ID must not be empty")
	}
	c.WatchedKeywords = splitList(c.WatchedKeywordsRaw)
	c.ConfidentialPatterns = splitList(c.ConfidentialPatternsRaw)
	if len(c.ConfidentialPatterns) == 0 {
		c.ConfidentialPatterns = defaultConfidentialPatterns
	}
	c.ReactivationPhrases = splitList(c.ReactivationPhrasesRaw)
	if len(c.ReactivationPhrases) == 0 {
		c.ReactivationPhrases = defaultReactivationPhrases
	}
	c.OwnerPrefix = defaultOwnerPrefix
	if c.OwnerPrefixRaw != nil {
		c.OwnerPrefix = *c.OwnerPrefixRaw
	}
	c.DisclosureSuffix = defaultDisclosureSuffix
	if c.DisclosureRaw != nil {
		c.DisclosureSuffix = *c.DisclosureRaw
	}
	if strings.TrimSpace(c.Persona) == "" {
		c.Persona = defaultPersona
	}

	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DBUser == "" || c.DBName == "" {
			return fmt.Errorf("config error: DB_USER and DB_NAME are required for the postgres store")
		}
	default:
		return fmt.Errorf("config error: unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.MemoryWindow <= 0 || c.MemoryWindow > 6 {
		return fmt.Errorf("config error: MEMORY_WINDOW must be between 1 and 6, got %d", c.MemoryWindow)
	}
	if c.FollowUpWindow < 0 || c.AssistCooldown < 0 {
		return fmt.Errorf("config error: durations must not be negative")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
