// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Init 根据日志级别与输出格式初始化全局 logger。
// format 为 "json" 或 environment 为 "production" 时输出 JSON，便于日志采集；否则使用文本格式。
func Init(level, format, environment string) error {
	parsed, err := ParseLevel(level)
	if err != nil {
		return err
	}

	logger := logrus.StandardLogger()
	logger.SetOutput(os.Stdout)
	logger.SetLevel(parsed)

	if strings.EqualFold(format, "json") || strings.EqualFold(environment, "production") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// ParseLevel converts a case-insensitive level name. Empty means info.
func ParseLevel(level string) (logrus.Level, error) {
	trimmed := strings.ToLower(strings.TrimSpace(level))
	if trimmed == "" {
		return logrus.InfoLevel, nil
	}
	if trimmed == "warning" {
		trimmed = "warn"
	}
	parsed, err := logrus.ParseLevel(trimmed)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid LOG_LEVEL value %q: %w", level, err)
	}
	return parsed, nil
}

// For returns an entry tagged with the owning component.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}

// Preview shortens s to at most n runes for log lines, appending "..." when cut.
func Preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
