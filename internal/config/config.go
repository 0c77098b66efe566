package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingCredentials is returned when no username/password pair was
// found in config.json, the environment or the command line.
var ErrMissingCredentials = errors.New("no valid credentials: create config.json, set CHECKIN_USERNAME/CHECKIN_PASSWORD, or pass them as arguments")

// Credentials holds the target site login.
type Credentials struct {
	Username string
	Password string
}

// Validate reports ErrMissingCredentials when either half is empty.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// TriggerTime is a wall-clock hour and minute.
type TriggerTime struct {
	Hour   int
	Minute int
}

func (t TriggerTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ScheduleConfig holds trigger times and the startup behaviour.
type ScheduleConfig struct {
	MorningCheckin TriggerTime
	EveningCheckin TriggerTime
	DailyReport    TriggerTime
	Grace          time.Duration
	RunOnStartup   bool
}

// BrowserConfig holds browser and flow settings.
type BrowserConfig struct {
	LoginURL     string
	Headless     bool
	ContainerEnv bool
	AIAttempts   int
	AIPolls      int
}

// CaptchaConfig holds the OCR service settings.
type CaptchaConfig struct {
	OCRURL  string
	Timeout time.Duration
}

// WxPusherConfig holds WxPusher credentials.
type WxPusherConfig struct {
	AppToken string
	UID      string
}

// Enabled reports whether both token and uid are set.
func (w WxPusherConfig) Enabled() bool {
	return w.AppToken != "" && w.UID != ""
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL string
}

// NotificationConfig holds all notification settings.
type NotificationConfig struct {
	WxPusher WxPusherConfig
	Bark     BarkConfig
}

// ServerConfig holds the optional HTTP/MCP surface.
type ServerConfig struct {
	Mode      string
	Addr      string
	AuthToken string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Config holds all runtime configuration.
type Config struct {
	Credentials  Credentials
	Schedule     ScheduleConfig
	Browser      BrowserConfig
	Captcha      CaptchaConfig
	Notification NotificationConfig
	Server       ServerConfig
	Log          LogConfig

	Timezone      string
	Location      *time.Location
	LockDir       string
	StateDir      string
	RunKeep       int
	ShutdownGrace time.Duration

	ConfigFile      string
	ConfigFileState FileState
}

// FileState describes what happened to config.json while loading.
type FileState string

const (
	FileLoaded  FileState = "loaded"
	FileMissing FileState = "missing"
	FileInvalid FileState = "invalid"
)

// Overrides carries command-line values; zero values mean "not set".
type Overrides struct {
	ConfigFile string
	LogLevel   string
	StateDir   string
	LockDir    string
	Mode       string
	Addr       string
}

const (
	defaultConfigFile    = "config.json"
	defaultTimezone      = "Asia/Shanghai"
	defaultLockDir       = "/tmp/daka_locks"
	defaultLoginURL      = "https://qd.dxssxdk.com/lanhu_yonghudenglu"
	defaultAddr          = "127.0.0.1:7071"
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
	defaultGrace         = 5 * time.Minute
	defaultAIAttempts    = 3
	defaultAIPolls       = 60
	defaultRunKeep       = 50
	defaultShutdownGrace = 5 * time.Second
	defaultOCRTimeout    = 10 * time.Second
)

// fileConfig mirrors config.json.
type fileConfig struct {
	Username         string `json:"username"`
	Password         string `json:"password"`
	WxPusherAppToken string `json:"wxpusher_app_token"`
	WxPusherUID      string `json:"wxpusher_uid"`
}

// Load builds the configuration.
// Priority: flags > environment > .env files > defaults. Credentials and
// WxPusher settings prefer config.json over the environment.
func Load(ov Overrides) (*Config, error) {
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "daka", ".env"))
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f) // optional
	}
	return load(ov, os.LookupEnv)
}

func load(ov Overrides, lookup func(string) (string, bool)) (*Config, error) {
	env := envSource(lookup)

	cfg := &Config{
		Schedule: ScheduleConfig{
			MorningCheckin: TriggerTime{env.Int("MORNING_CHECKIN_HOUR", 8), env.Int("MORNING_CHECKIN_MINUTE", 0)},
			EveningCheckin: TriggerTime{env.Int("EVENING_CHECKIN_HOUR", 17), env.Int("EVENING_CHECKIN_MINUTE", 0)},
			DailyReport:    TriggerTime{env.Int("DAILY_REPORT_HOUR", 17), env.Int("DAILY_REPORT_MINUTE", 30)},
			Grace:          env.Duration("DAKA_MISFIRE_GRACE", defaultGrace),
			RunOnStartup:   env.Bool("RUN_ON_STARTUP", false),
		},
		Browser: BrowserConfig{
			LoginURL:     env.String("DAKA_LOGIN_URL", defaultLoginURL),
			Headless:     env.Bool("HEADLESS", true) || env.Bool("GITHUB_ACTIONS", false),
			ContainerEnv: env.Bool("CONTAINER_ENV", false),
			AIAttempts:   env.Int("DAKA_AI_ATTEMPTS", defaultAIAttempts),
			AIPolls:      env.Int("DAKA_AI_POLLS", defaultAIPolls),
		},
		Captcha: CaptchaConfig{
			OCRURL:  env.String("CAPTCHA_OCR_URL", ""),
			Timeout: env.Duration("CAPTCHA_OCR_TIMEOUT", defaultOCRTimeout),
		},
		Notification: NotificationConfig{
			WxPusher: WxPusherConfig{
				AppToken: env.String("WXPUSHER_APP_TOKEN", ""),
				UID:      env.String("WXPUSHER_UID", ""),
			},
			Bark: BarkConfig{URL: env.String("DAKA_BARK_URL", "")},
		},
		Server: ServerConfig{
			Mode:      env.String("DAKA_MODE", ""),
			Addr:      env.String("DAKA_ADDR", defaultAddr),
			AuthToken: env.String("DAKA_AUTH_TOKEN", ""),
		},
		Log: LogConfig{
			Level:  env.String("DAKA_LOG_LEVEL", defaultLogLevel),
			Format: env.String("DAKA_LOG_FORMAT", defaultLogFormat),
		},
		Credentials: Credentials{
			Username: env.String("CHECKIN_USERNAME", ""),
			Password: env.String("CHECKIN_PASSWORD", ""),
		},
		Timezone:      env.String("DAKA_TIMEZONE", defaultTimezone),
		LockDir:       env.String("DAKA_LOCK_DIR", defaultLockDir),
		StateDir:      env.String("DAKA_STATE_DIR", ""),
		RunKeep:       env.Int("DAKA_RUN_KEEP", defaultRunKeep),
		ShutdownGrace: env.Duration("DAKA_SHUTDOWN_GRACE", defaultShutdownGrace),
		ConfigFile:    env.String("DAKA_CONFIG_FILE", defaultConfigFile),
	}

	if ov.ConfigFile != "" {
		cfg.ConfigFile = ov.ConfigFile
	}
	if ov.LogLevel != "" {
		cfg.Log.Level = ov.LogLevel
	}
	if ov.StateDir != "" {
		cfg.StateDir = ov.StateDir
	}
	if ov.LockDir != "" {
		cfg.LockDir = ov.LockDir
	}
	if ov.Mode != "" {
		cfg.Server.Mode = ov.Mode
	}
	if ov.Addr != "" {
		cfg.Server.Addr = ov.Addr
	}

	cfg.ConfigFileState = cfg.applyFile(cfg.ConfigFile)

	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	cfg.Location = loc

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}
	if cfg.RunKeep < 1 {
		cfg.RunKeep = defaultRunKeep
	}
	if cfg.Browser.AIAttempts < 1 {
		cfg.Browser.AIAttempts = defaultAIAttempts
	}
	if cfg.Browser.AIPolls < 1 {
		cfg.Browser.AIPolls = defaultAIPolls
	}
	if cfg.Schedule.Grace < 0 {
		cfg.Schedule.Grace = 0
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile overlays config.json values. A missing or malformed file is not
// an error; the state is reported so the caller can log it.
func (c *Config) applyFile(path string) FileState {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileMissing
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return FileInvalid
	}
	if fc.Username != "" {
		c.Credentials.Username = fc.Username
	}
	if fc.Password != "" {
		c.Credentials.Password = fc.Password
	}
	if fc.WxPusherAppToken != "" {
		c.Notification.WxPusher.AppToken = fc.WxPusherAppToken
	}
	if fc.WxPusherUID != "" {
		c.Notification.WxPusher.UID = fc.WxPusherUID
	}
	return FileLoaded
}

// ApplyArgs fills credentials from positional arguments when neither
// config.json nor the environment provided a complete pair.
func (c *Config) ApplyArgs(args []string) {
	if c.Credentials.Validate() == nil {
		return
	}
	if len(args) >= 2 {
		c.Credentials = Credentials{Username: args[0], Password: args[1]}
	}
}

// RequireCaptcha reports an error when no OCR endpoint is configured.
func (c *Config) RequireCaptcha() error {
	if strings.TrimSpace(c.Captcha.OCRURL) == "" {
		return errors.New("captcha solver endpoint required: set CAPTCHA_OCR_URL")
	}
	return nil
}

func (c *Config) validate() error {
	for name, t := range map[string]TriggerTime{
		"morning check-in": c.Schedule.MorningCheckin,
		"evening check-in": c.Schedule.EveningCheckin,
		"daily report":     c.Schedule.DailyReport,
	} {
		if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
			return fmt.Errorf("invalid %s time %s", name, t)
		}
	}
	switch c.Server.Mode {
	case "", "http", "mcp", "both":
	default:
		return fmt.Errorf("invalid mode %q (valid: http, mcp, both)", c.Server.Mode)
	}
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == defaultTimezone {
		// hosts without tzdata
		return time.FixedZone("CST", 8*60*60), nil
	}
	return nil, fmt.Errorf("load timezone %q: %w", name, err)
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, "daka"), nil
}
