package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Environment variables read by FromEnv.
const (
	EnvLevel      = "BILIURL_LOG_LEVEL"
	EnvFormat     = "BILIURL_LOG_FORMAT"
	EnvOutput     = "BILIURL_LOG_OUTPUT"
	EnvCaller     = "BILIURL_LOG_CALLER"
	EnvTimestamp  = "BILIURL_LOG_TIMESTAMP"
	EnvComponents = "BILIURL_LOG_COMPONENTS"
	EnvMaxSize    = "BILIURL_LOG_MAX_SIZE"
	EnvMaxBackups = "BILIURL_LOG_MAX_BACKUPS"
)

const filePrefix = "file:"

// Settings is the string form of a logger configuration, as read from the
// environment or flags.
type Settings struct {
	Level      string
	Format     string
	Output     string
	Components []string
	ShowCaller bool
	Timestamp  bool
	MaxSize    string
	MaxBackups int
}

// DefaultSettings mirrors DefaultConfig.
func DefaultSettings() Settings {
	return Settings{
		Level:      "INFO",
		Format:     "text",
		Output:     "stderr",
		Components: []string{string(ComponentApp), string(ComponentServer), string(ComponentResolver)},
		MaxSize:    "10MB",
		MaxBackups: 3,
	}
}

// SettingsFromEnv overlays BILIURL_LOG_* variables on the defaults.
// lookup is os.LookupEnv when nil.
func SettingsFromEnv(lookup func(string) (string, bool)) (Settings, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	s := DefaultSettings()
	if v, ok := lookup(EnvLevel); ok && v != "" {
		s.Level = v
	}
	if v, ok := lookup(EnvFormat); ok && v != "" {
		s.Format = v
	}
	if v, ok := lookup(EnvOutput); ok && v != "" {
		s.Output = v
	}
	if v, ok := lookup(EnvCaller); ok {
		s.ShowCaller = parseBool(v)
	}
	if v, ok := lookup(EnvTimestamp); ok {
		s.Timestamp = parseBool(v)
	}
	if v, ok := lookup(EnvComponents); ok && v != "" {
		s.Components = splitComponents(v)
	}
	if v, ok := lookup(EnvMaxSize); ok && v != "" {
		s.MaxSize = v
	}
	if v, ok := lookup(EnvMaxBackups); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return s, fmt.Errorf("%s: want a non-negative integer, got %q", EnvMaxBackups, v)
		}
		s.MaxBackups = n
	}
	return s, s.Validate()
}

// Validate checks every field without opening any output.
func (s Settings) Validate() error {
	if _, err := parseLevel(s.Level); err != nil {
		return fmt.Errorf("invalid level: %v", err)
	}
	if _, err := parseFormat(s.Format); err != nil {
		return fmt.Errorf("invalid format: %v", err)
	}
	switch strings.ToLower(s.Output) {
	case "stdout", "stderr", "null", "none":
	default:
		if !strings.HasPrefix(s.Output, filePrefix) || strings.TrimPrefix(s.Output, filePrefix) == "" {
			return fmt.Errorf("invalid output: %s", s.Output)
		}
	}
	if _, err := parseSize(s.MaxSize); err != nil {
		return fmt.Errorf("invalid max size: %v", err)
	}
	if s.MaxBackups < 0 {
		return fmt.Errorf("max backups must be non-negative")
	}
	return nil
}

// Build opens the configured output and returns the logger together with a
// close function for file outputs (a no-op otherwise).
func (s Settings) Build() (*Logger, func() error, error) {
	if err := s.Validate(); err != nil {
		return nil, nil, err
	}
	level, _ := parseLevel(s.Level)
	format, _ := parseFormat(s.Format)
	out, closeFn, err := s.openOutput()
	if err != nil {
		return nil, nil, err
	}

	components := make(map[Component]bool, len(AllComponents))
	for _, c := range AllComponents {
		components[c] = false
	}
	for _, name := range s.Components {
		if name == "all" {
			for _, c := range AllComponents {
				components[c] = true
			}
			continue
		}
		components[Component(name)] = true
	}

	return New(&Config{
		Level:      level,
		Format:     format,
		Output:     out,
		Components: components,
		ShowCaller: s.ShowCaller,
		Timestamp:  s.Timestamp,
	}), closeFn, nil
}

func (s Settings) openOutput() (io.Writer, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(s.Output) {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr":
		return os.Stderr, noop, nil
	case "null", "none":
		return io.Discard, noop, nil
	}
	path := strings.TrimPrefix(s.Output, filePrefix)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %v", err)
	}
	maxSize, _ := parseSize(s.MaxSize)
	rw, err := NewRotatingWriter(path, maxSize, s.MaxBackups)
	if err != nil {
		return nil, nil, err
	}
	return rw, rw.Close, nil
}

func parseLevel(levelStr string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown level: %s", levelStr)
	}
}

func parseFormat(formatStr string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(formatStr)) {
	case "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "color", "colored":
		return FormatColor, nil
	default:
		return FormatText, fmt.Errorf("unknown format: %s", formatStr)
	}
}

// parseSize reads sizes like "512KB" or "10MB". Zero disables rotation.
func parseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if sizeStr == "" {
		return 0, nil
	}
	i := 0
	for i < len(sizeStr) && sizeStr[i] >= '0' && sizeStr[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("no number found in size: %s", sizeStr)
	}
	num, err := strconv.ParseInt(sizeStr[:i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse number: %v", err)
	}
	switch unit := strings.ToUpper(strings.TrimSpace(sizeStr[i:])); unit {
	case "", "B":
		return num, nil
	case "KB":
		return num << 10, nil
	case "MB":
		return num << 20, nil
	case "GB":
		return num << 30, nil
	default:
		return 0, fmt.Errorf("unknown unit: %s", unit)
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitComponents(v string) []string {
	var out []string
	for _, c := range strings.Split(v, ",") {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			out = append(out, c)
		}
	}
	return out
}
