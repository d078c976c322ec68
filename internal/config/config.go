package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything loaded from the environment. It is built once in
// main and passed by reference; nothing reads the environment after startup.
type Config struct {
	Port string

	DBDriver   string // "postgres" or "sqlite"
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string
	DBPath     string // sqlite only

	BotsFile     string
	MessagesFile string

	MailServer  string
	MailPort    int
	MailUser    string
	MailPass    string
	MailSender  string
	ReportErrorTo string
	ReportDailyTo string
	DailyReportTime string // "15:04" wall clock

	CountryPrefix string
	OwnerAllowList []string

	BrowserBin string
	Headless   bool
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port: getEnv("PORT", "8090"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "salesbot"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBPath:     getEnv("DB_PATH", "./salesbot.db"),

		BotsFile:     getEnv("CONFIG_FILE", "config.json"),
		MessagesFile: getEnv("MESSAGES_FILE", "messages.json"),

		MailServer:      getEnv("MAIL_SERVER", ""),
		MailPort:        getEnvInt("MAIL_PORT", 587),
		MailUser:        getEnv("MAIL_USERNAME", ""),
		MailPass:        getEnv("MAIL_PASSWORD", ""),
		MailSender:      getEnv("MAIL_DEFAULT_SENDER", ""),
		ReportErrorTo:   getEnv("REPORT_ERROR_TO", ""),
		ReportDailyTo:   getEnv("REPORT_DAILY_TO", ""),
		DailyReportTime: getEnv("DAILY_REPORT_TIME", "13:04"),

		CountryPrefix:  getEnv("COUNTRY_PREFIX", "+1"),
		OwnerAllowList: splitList(getEnv("OWNER_ALLOWLIST", "Texila American University,System")),

		BrowserBin: getEnv("BROWSER_BIN", ""),
		Headless:   getEnv("HEADLESS", "false") == "true",
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// BotConfig assigns one bot its campus partition and browser profile.
type BotConfig struct {
	Campuses []string `json:"campuses"`
	Profile  string   `json:"profile"`
}

// Settings are the shared pacing knobs for every bot.
type Settings struct {
	PollIntervalSec    int `json:"poll_interval"`
	BatchSize          int `json:"batch_size"`
	MessageDelayMinSec int `json:"message_delay_min"`
	MessageDelayMaxSec int `json:"message_delay_max"`
	AntiLockIntervalSec int `json:"anti_lock_interval"`
	StaggerDelaySec    int `json:"stagger_delay"`
}

func (s Settings) PollInterval() time.Duration  { return time.Duration(s.PollIntervalSec) * time.Second }
func (s Settings) DelayMin() time.Duration      { return time.Duration(s.MessageDelayMinSec) * time.Second }
func (s Settings) DelayMax() time.Duration      { return time.Duration(s.MessageDelayMaxSec) * time.Second }
func (s Settings) AntiLockInterval() time.Duration {
	return time.Duration(s.AntiLockIntervalSec) * time.Second
}
func (s Settings) StaggerDelay() time.Duration { return time.Duration(s.StaggerDelaySec) * time.Second }

type botsFile struct {
	Bots     map[string]BotConfig `json:"bots"`
	Settings Settings             `json:"settings"`
}

// LoadBots reads the bots map and shared settings from the JSON config file.
func LoadBots(path string) (map[string]BotConfig, Settings, error) {
	defaults := Settings{
		PollIntervalSec:     30,
		BatchSize:           5,
		MessageDelayMinSec:  3,
		MessageDelayMaxSec:  6,
		AntiLockIntervalSec: 240,
		StaggerDelaySec:     15,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, defaults, fmt.Errorf("read bots config: %w", err)
	}

	parsed := botsFile{Settings: defaults}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, defaults, fmt.Errorf("parse bots config: %w", err)
	}
	if len(parsed.Bots) == 0 {
		return nil, defaults, fmt.Errorf("bots config %s defines no bots", path)
	}

	return parsed.Bots, parsed.Settings, nil
}

// LoadTemplates reads the program -> message template map.
func LoadTemplates(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	templates := map[string]string{}
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return templates, nil
}
