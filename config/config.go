// Package config loads the plain-text key=value configuration file.
// Lines starting with # are comments; values may be quoted with double,
// single or back quotes. Durations accept s|m|h suffixes and sizes accept
// k|m suffixes.
package config

import (
	"strconv"
	"strings"

	ini "github.com/go-ini/ini"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Config holds every recognised setting with its default applied.
type Config struct {
	DatabaseFile        string
	MaxCachedStatements int

	MaxCachedHostNames int
	HostNameExpireTime int // ms

	UpdateRate int

	Port                    int
	Password                string
	MaxConnections          int
	MaxConnectionIdleTime   int // ms
	MaxConnectionPacketSize int
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DatabaseFile:            "query.db",
		MaxCachedStatements:     100,
		MaxCachedHostNames:      32,
		HostNameExpireTime:      5 * 60 * 1000,
		UpdateRate:              20,
		Port:                    7174,
		Password:                "",
		MaxConnections:          50,
		MaxConnectionIdleTime:   60000,
		MaxConnectionPacketSize: 1024 * 1024,
	}
}

// Load reads the configuration file at path over the defaults.
func Load(path string) (*Config, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		KeyValueDelimiters:  "=",
		IgnoreInlineComment: true,
	}, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %q", path)
	}

	cfg := Default()
	for _, key := range file.Section("").Keys() {
		val := unquote(strings.TrimSpace(key.Value()))
		if val == "" {
			log.Warnf("config: empty value for %q", key.Name())
			continue
		}

		var ok bool
		switch strings.ToLower(key.Name()) {
		case "databasefile":
			cfg.DatabaseFile, ok = val, true
		case "maxcachedstatements":
			ok = readInteger(&cfg.MaxCachedStatements, val)
		case "maxcachedhostnames":
			ok = readInteger(&cfg.MaxCachedHostNames, val)
		case "hostnameexpiretime":
			ok = readDuration(&cfg.HostNameExpireTime, val)
		case "updaterate":
			ok = readInteger(&cfg.UpdateRate, val)
		case "port", "querymanagerport":
			ok = readInteger(&cfg.Port, val)
		case "password", "querymanagerpassword":
			cfg.Password, ok = val, true
		case "maxconnections":
			ok = readInteger(&cfg.MaxConnections, val)
		case "maxconnectionidletime":
			ok = readDuration(&cfg.MaxConnectionIdleTime, val)
		case "maxconnectionpacketsize":
			ok = readSize(&cfg.MaxConnectionPacketSize, val)
		default:
			log.Warnf("config: unknown key %q", key.Name())
			continue
		}

		if !ok {
			log.Warnf("config: invalid value %q for %q", val, key.Name())
		}
	}

	return cfg, nil
}

func unquote(val string) string {
	if len(val) >= 2 {
		first, last := val[0], val[len(val)-1]
		if first == last && (first == '"' || first == '\'' || first == '`') {
			return val[1 : len(val)-1]
		}
	}
	return val
}

// splitSuffix separates the leading integer from an optional suffix.
func splitSuffix(val string) (int, string, bool) {
	end := 0
	if end < len(val) && (val[end] == '+' || val[end] == '-') {
		end++
	}
	for end < len(val) && val[end] >= '0' && val[end] <= '9' {
		end++
	}

	n, err := strconv.Atoi(val[:end])
	if err != nil {
		return 0, "", false
	}
	return n, strings.TrimSpace(val[end:]), true
}

func readInteger(dest *int, val string) bool {
	n, suffix, ok := splitSuffix(val)
	if !ok || suffix != "" {
		return false
	}
	*dest = n
	return true
}

// readDuration decodes a value in milliseconds with an optional
// s, m or h suffix.
func readDuration(dest *int, val string) bool {
	n, suffix, ok := splitSuffix(val)
	if !ok {
		return false
	}

	switch strings.ToLower(suffix) {
	case "":
	case "s":
		n *= 1000
	case "m":
		n *= 60 * 1000
	case "h":
		n *= 60 * 60 * 1000
	default:
		return false
	}

	*dest = n
	return true
}

// readSize decodes a byte size with an optional k or m suffix.
func readSize(dest *int, val string) bool {
	n, suffix, ok := splitSuffix(val)
	if !ok {
		return false
	}

	switch strings.ToLower(suffix) {
	case "":
	case "k":
		n *= 1024
	case "m":
		n *= 1024 * 1024
	default:
		return false
	}

	*dest = n
	return true
}
