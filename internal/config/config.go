// Package config reads the service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendCalDAV = "caldav"
	BackendGoogle = "google"
)

// DefaultCalDAVEndpoint is iCloud's CalDAV server.
const DefaultCalDAVEndpoint = "https://caldav.icloud.com/"

type Config struct {
	LogLevel string
	Listen   string
	Backend  string
	DBPath   string
	Timezone string

	CalDAVEndpoint     string
	CalDAVUsername     string
	CalDAVPassword     string
	CalDAVCalendarName string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleAccount      string
	GoogleCalendarID   string

	RedisURL     string
	RedisChannel string

	GeminiAPIKey string
	GeminiModel  string

	MirrorBackend string
	SyncStateFile string
}

// Load reads the configuration. Call godotenv.Load first to honour a .env file.
func Load() *Config {
	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Listen:   getEnv("EVENTDASH_LISTEN", "127.0.0.1:8080"),
		Backend:  strings.ToLower(getEnv("EVENTDASH_BACKEND", BackendSQLite)),
		DBPath:   getEnv("EVENTDASH_DB_PATH", "./eventdash.db"),
		Timezone: getEnv("PRIMARY_TIMEZONE", ""),

		CalDAVEndpoint:     getEnv("CALDAV_ENDPOINT", DefaultCalDAVEndpoint),
		CalDAVUsername:     getEnv("CALDAV_USERNAME", ""),
		CalDAVPassword:     getEnv("CALDAV_PASSWORD", ""),
		CalDAVCalendarName: getEnv("CALDAV_CALENDAR_NAME", ""),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleAccount:      getEnv("GOOGLE_ACCOUNT", ""),
		GoogleCalendarID:   getEnv("GOOGLE_CALENDAR_ID", "primary"),

		RedisURL:     getEnv("REDIS_URL", ""),
		RedisChannel: getEnv("REDIS_CHANNEL", "eventdash:readable"),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", ""),

		MirrorBackend: strings.ToLower(getEnv("EVENTDASH_MIRROR", "")),
		SyncStateFile: getEnv("EVENTDASH_SYNC_STATE", "sync-state.json"),
	}
}

// Location resolves Timezone. An empty value means the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	errs := c.checkBackend(c.Backend)
	switch c.MirrorBackend {
	case "":
	case BackendCalDAV, BackendGoogle:
		errs = append(errs, c.checkBackend(c.MirrorBackend)...)
	default:
		errs = append(errs, fmt.Errorf("mirror backend must be %s or %s, got %q", BackendCalDAV, BackendGoogle, c.MirrorBackend))
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) checkBackend(backend string) []error {
	var required map[string]string
	switch backend {
	case BackendMemory:
	case BackendSQLite:
		required = map[string]string{"EVENTDASH_DB_PATH": c.DBPath}
	case BackendCalDAV:
		required = map[string]string{
			"CALDAV_USERNAME":      c.CalDAVUsername,
			"CALDAV_PASSWORD":      c.CalDAVPassword,
			"CALDAV_CALENDAR_NAME": c.CalDAVCalendarName,
		}
	case BackendGoogle:
		required = map[string]string{
			"GOOGLE_CLIENT_ID":     c.GoogleClientID,
			"GOOGLE_CLIENT_SECRET": c.GoogleClientSecret,
			"GOOGLE_ACCOUNT":       c.GoogleAccount,
		}
	default:
		return []error{fmt.Errorf("unknown backend %q", backend)}
	}

	var errs []error
	for _, name := range sortedKeys(required) {
		if required[name] == "" {
			errs = append(errs, fmt.Errorf("%s environment variable not set for the %s backend", name, backend))
		}
	}
	return errs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
