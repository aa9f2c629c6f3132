package config

import (
	"os"
	"strconv"
	"time"
)

// GetEnv returns the environment variable value for key, or def if unset or empty.
func GetEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt returns the environment variable value for key parsed as int, or def if unset or invalid.
func GetEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

// GetEnvInt32 is GetEnvInt for values handed to APIs that take int32, such as pool sizes.
// Values outside the int32 range fall back to def.
func GetEnvInt32(key string, def int32) int32 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 32); err == nil {
			return int32(i)
		}
	}
	return def
}

// GetEnvBool returns the environment variable value for key parsed as bool, or def if unset or invalid.
func GetEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return def
}

// GetEnvDuration returns the environment variable value for key parsed as time.Duration, or def if unset or invalid.
func GetEnvDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return def
}
