package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MaxRoster bounds the number of operators in the rotation.
const MaxRoster = 16

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	MegaAPI   MegaAPIConfig   `mapstructure:"megaapi"`
	Email     EmailConfig     `mapstructure:"email"`
	Instagram InstagramConfig `mapstructure:"instagram"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Rotation  RotationConfig  `mapstructure:"rotation"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Redis     RedisConfig     `mapstructure:"redis"`
	AMQP      AMQPConfig      `mapstructure:"amqp"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// StoreConfig selects the conversation store backend: memory, postgres or
// rest (PostgREST compatible, e.g. Supabase).
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	URL     string `mapstructure:"url"`
	Key     string `mapstructure:"key"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type OpenAIConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	ReplyMaxTokens int     `mapstructure:"reply_max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type MegaAPIConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Instance string `mapstructure:"instance"`
	Token    string `mapstructure:"token"`
}

type EmailConfig struct {
	Address       string `mapstructure:"address"`
	Password      string `mapstructure:"password"`
	IMAPServer    string `mapstructure:"imap_server"`
	IMAPPort      int    `mapstructure:"imap_port"`
	SMTPServer    string `mapstructure:"smtp_server"`
	SMTPPort      int    `mapstructure:"smtp_port"`
	Mailbox       string `mapstructure:"mailbox"`
	CheckInterval int    `mapstructure:"check_interval"`
}

func (c EmailConfig) Enabled() bool {
	return c.Address != "" && c.Password != ""
}

// Interval is the poll interval; check_interval is in seconds.
func (c EmailConfig) Interval() time.Duration {
	return time.Duration(c.CheckInterval) * time.Second
}

type InstagramConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	BridgeURL     string  `mapstructure:"bridge_url"`
	Token         string  `mapstructure:"token"`
	CheckInterval int     `mapstructure:"check_interval"`
	SendEvery     float64 `mapstructure:"send_every"`
}

func (c InstagramConfig) Interval() time.Duration {
	return time.Duration(c.CheckInterval) * time.Second
}

// SendInterval is the minimum gap between two direct-message sends.
func (c InstagramConfig) SendInterval() time.Duration {
	return time.Duration(c.SendEvery * float64(time.Second))
}

// DedupConfig bounds the processed-key records. Dir is where the records
// are kept across restarts when Redis is not configured; empty keeps them in
// memory only.
type DedupConfig struct {
	Ceiling int    `mapstructure:"ceiling"`
	Retain  int    `mapstructure:"retain"`
	Dir     string `mapstructure:"dir"`
}

type Operator struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	Glyph   string `mapstructure:"glyph"`
}

type RotationConfig struct {
	Roster []Operator `mapstructure:"-"`
}

// NotifyConfig selects where hot-lead notifications go. Transport is
// whatsapp (MegaAPI) or telegram.
type NotifyConfig struct {
	Transport    string `mapstructure:"transport"`
	GroupAddress string `mapstructure:"group_address"`
	TestMode     bool   `mapstructure:"test_mode"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

// parseRoster reads the compact env form "Name|address|glyph;Name|address".
func parseRoster(s string) ([]Operator, error) {
	var roster []Operator
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("roster entry %q: want Name|address[|glyph]", entry)
		}
		op := Operator{Name: strings.TrimSpace(parts[0]), Address: strings.TrimSpace(parts[1])}
		if len(parts) == 3 {
			op.Glyph = strings.TrimSpace(parts[2])
		}
		roster = append(roster, op)
	}
	return roster, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Sistema Multi-Canal")
	v.SetDefault("server.addr", ":8000")

	v.SetDefault("store.backend", "memory")

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "leadrouter")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 150)
	v.SetDefault("openai.reply_max_tokens", 500)
	v.SetDefault("openai.temperature", 0.7)

	v.SetDefault("email.imap_server", "imap.gmail.com")
	v.SetDefault("email.imap_port", 993)
	v.SetDefault("email.smtp_server", "smtp.gmail.com")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.mailbox", "INBOX")
	v.SetDefault("email.check_interval", 10)

	v.SetDefault("instagram.enabled", false)
	v.SetDefault("instagram.check_interval", 120)
	v.SetDefault("instagram.send_every", 5)

	v.SetDefault("dedup.ceiling", 1000)
	v.SetDefault("dedup.retain", 800)
	v.SetDefault("dedup.dir", "data/dedup")

	v.SetDefault("notify.transport", "whatsapp")
	v.SetDefault("notify.test_mode", false)

	v.SetDefault("amqp.exchange", "leads.events")
}

// LoadConfig reads the optional YAML file at path and overlays environment
// variables. Every key is settable from the environment with dots replaced
// by underscores (EMAIL_CHECK_INTERVAL, ROTATION_ROSTER, ...).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows about.
	for _, key := range []string{
		"store.url", "store.key",
		"openai.api_key", "openai.base_url",
		"telegram.token",
		"megaapi.base_url", "megaapi.instance", "megaapi.token",
		"email.address", "email.password",
		"instagram.bridge_url", "instagram.token",
		"rotation.roster",
		"notify.group_address",
		"redis.addr", "redis.password", "redis.db",
		"amqp.url",
		"database.password",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	switch raw := v.Get("rotation.roster").(type) {
	case nil:
	case string:
		roster, err := parseRoster(raw)
		if err != nil {
			return nil, err
		}
		config.Rotation.Roster = roster
	default:
		if err := v.UnmarshalKey("rotation.roster", &config.Rotation.Roster); err != nil {
			return nil, fmt.Errorf("decode rotation.roster: %w", err)
		}
	}

	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Database = dbConfig
	}

	return &config, nil
}

// Validate checks the settings the router cannot start without.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case "memory", "postgres":
	case "rest":
		if c.Store.URL == "" || c.Store.Key == "" {
			errs = append(errs, errors.New("store.url and store.key are required for the rest backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}

	if len(c.Rotation.Roster) == 0 {
		errs = append(errs, errors.New("rotation.roster is empty"))
	}
	if len(c.Rotation.Roster) > MaxRoster {
		errs = append(errs, fmt.Errorf("rotation.roster has %d operators, max %d", len(c.Rotation.Roster), MaxRoster))
	}
	for i, op := range c.Rotation.Roster {
		if op.Name == "" {
			errs = append(errs, fmt.Errorf("rotation.roster[%d] has no name", i))
		}
	}

	if c.Dedup.Ceiling <= 0 {
		errs = append(errs, errors.New("dedup.ceiling must be positive"))
	}
	if c.Dedup.Retain <= 0 || c.Dedup.Retain >= c.Dedup.Ceiling {
		errs = append(errs, fmt.Errorf("dedup.retain %d must be between 1 and ceiling %d", c.Dedup.Retain, c.Dedup.Ceiling))
	}

	switch c.Notify.Transport {
	case "whatsapp":
	case "telegram":
		if c.Telegram.Token == "" {
			errs = append(errs, errors.New("telegram.token is required for the telegram notify transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown notify.transport %q", c.Notify.Transport))
	}

	if c.Email.Enabled() && c.Email.CheckInterval <= 0 {
		errs = append(errs, errors.New("email.check_interval must be positive"))
	}
	if c.Instagram.Enabled {
		if c.Instagram.BridgeURL == "" {
			errs = append(errs, errors.New("instagram.bridge_url is required when instagram is enabled"))
		}
		if c.Instagram.CheckInterval <= 0 {
			errs = append(errs, errors.New("instagram.check_interval must be positive"))
		}
	}

	return errors.Join(errs...)
}
