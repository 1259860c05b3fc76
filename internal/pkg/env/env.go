// Package env provides utilities for working with environment variables.
package env

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Get returns the value of the environment variable or the default if not set.
func Get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetInt64 parses the variable as a base-10 integer, falling back to the
// default when it is unset or malformed.
func GetInt64(key string, defaultValue int64) int64 {
	raw := Get(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return defaultValue
	}
	return v
}

// GetFloat parses the variable as a float, falling back to the default when
// it is unset or malformed.
func GetFloat(key string, defaultValue float64) float64 {
	raw := Get(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultValue
	}
	return v
}

// GetDuration parses the variable with time.ParseDuration ("5s", "250ms").
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	raw := Get(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

// IsDevelopment reports whether APP_ENV selects a development build.
// Diagnostic output that must never reach production is gated on it.
func IsDevelopment() bool {
	switch strings.ToLower(Get("APP_ENV", "production")) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
