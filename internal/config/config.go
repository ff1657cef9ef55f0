// Package config loads the command-line tool's settings from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Environment variable names.
const (
	EnvMailFrom       = "EMAILFINDER_MAIL_FROM"
	EnvHeloName       = "EMAILFINDER_HELO_NAME"
	EnvDNSServer      = "EMAILFINDER_DNS_SERVER"
	EnvSOCKS5Proxy    = "EMAILFINDER_SOCKS5_PROXY"
	EnvWorkers        = "EMAILFINDER_WORKERS"
	EnvHostInterval   = "EMAILFINDER_HOST_INTERVAL"
	EnvConnectTimeout = "EMAILFINDER_CONNECT_TIMEOUT"
	EnvCommandTimeout = "EMAILFINDER_COMMAND_TIMEOUT"
	EnvLogLevel       = "EMAILFINDER_LOG_LEVEL"
)

// Config holds the settings shared by flags and environment. Zero values
// mean "library default".
type Config struct {
	MailFrom       string
	HeloName       string
	DNSServer      string
	SOCKS5Proxy    string
	Workers        int
	HostInterval   time.Duration
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	LogLevel       logrus.Level
}

// Load reads files (default: ".env"; a missing default file is fine) into the
// environment without overriding variables already set, then parses the
// EMAILFINDER_* variables.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, fmt.Errorf("loading %s: %w", strings.Join(files, ", "), err)
	}
	return FromEnv()
}

// FromEnv parses the EMAILFINDER_* variables. Malformed numbers, durations
// and log levels are errors.
func FromEnv() (Config, error) {
	cfg := Config{
		MailFrom:    strings.TrimSpace(os.Getenv(EnvMailFrom)),
		HeloName:    strings.TrimSpace(os.Getenv(EnvHeloName)),
		DNSServer:   strings.TrimSpace(os.Getenv(EnvDNSServer)),
		SOCKS5Proxy: strings.TrimSpace(os.Getenv(EnvSOCKS5Proxy)),
		LogLevel:    logrus.InfoLevel,
	}

	var errs []error
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid worker count %q", EnvWorkers, v))
		}
		cfg.Workers = n
	}
	cfg.HostInterval = duration(EnvHostInterval, &errs)
	cfg.ConnectTimeout = duration(EnvConnectTimeout, &errs)
	cfg.CommandTimeout = duration(EnvCommandTimeout, &errs)

	if v := os.Getenv(EnvLogLevel); v != "" {
		level, err := logrus.ParseLevel(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvLogLevel, err))
		}
		cfg.LogLevel = level
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func duration(key string, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return 0
	}
	return d
}
