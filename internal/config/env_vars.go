package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	appNameVar     = "APP_NAME"
	envVar         = "ENV"
	logLevelVar    = "LOG_LEVEL"
	metricsAddrVar = "METRICS_ADDR"
	extensionIDVar = "EXTENSION_ID"
	contextIDVar   = "CONTEXT_ID"
)

// source resolves a variable from the environment first, then the config file.
type source struct {
	file map[string]string
}

func (s source) get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := s.file[key]; ok && value != "" {
		return value
	}
	return defaultValue
}

func (s source) getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(s.get(key, ""))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func (s source) getFloat(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(s.get(key, ""), 64)
	if err != nil || f <= 0 {
		return defaultValue
	}
	return f
}

func (s source) getInt(key string, defaultValue int) int {
	i, err := strconv.Atoi(s.get(key, ""))
	if err != nil || i <= 0 {
		return defaultValue
	}
	return i
}

func (s source) getList(key string, defaultValue []string) []string {
	raw := s.get(key, "")
	if raw == "" {
		return defaultValue
	}
	return strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' })
}

type EnvVars struct {
	src source
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.src.get(appNameVar, "Session Coordinator")
}

func (e EnvVars) GetEnv() string {
	return e.src.get(envVar, "DEV")
}

func (e EnvVars) GetLogLevel() string {
	return e.src.get(logLevelVar, "info")
}

// GetMetricsAddr returns the listen address of the /metrics endpoint. Empty disables it.
func (e EnvVars) GetMetricsAddr() string {
	return e.src.get(metricsAddrVar, "127.0.0.1:9464")
}

// GetExtensionID identifies the process family; messages from any other sender are rejected.
func (e EnvVars) GetExtensionID() string {
	return e.src.get(extensionIDVar, "session-coordinator")
}

// GetContextID names this execution context (background, panel, popup, ...).
func (e EnvVars) GetContextID() string {
	return e.src.get(contextIDVar, "background")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
