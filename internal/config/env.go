package config

import (
	"strconv"
	"strings"
	"time"
)

type envSource func(string) (string, bool)

// String returns the environment variable value or default.
func (e envSource) String(key, defaultVal string) string {
	if val, ok := e(key); ok {
		return strings.TrimSpace(val)
	}
	return defaultVal
}

// Int returns the environment variable as int or default.
func (e envSource) Int(key string, defaultVal int) int {
	if val, ok := e(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return defaultVal
}

// Bool returns the environment variable as bool or default.
func (e envSource) Bool(key string, defaultVal bool) bool {
	if val, ok := e(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultVal
}

// Duration returns the environment variable as duration or default.
func (e envSource) Duration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := e(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(val)); err == nil {
			return d
		}
	}
	return defaultVal
}
