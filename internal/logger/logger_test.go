package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func newBufferLogger(t *testing.T, mutate func(*Config)) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg), &buf
}

func TestLogger_LevelFilter(t *testing.T) {
	lg, buf := newBufferLogger(t, nil)
	cl := lg.WithComponent(ComponentResolver)

	cl.Debug("hidden")
	cl.Info("shown info")
	cl.Error("shown error")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("DEBUG entry should be filtered at INFO")
	}
	if !strings.Contains(out, "[INFO] [resolver] shown info") {
		t.Errorf("missing info line in %q", out)
	}
	if !strings.Contains(out, "[ERROR] [resolver] shown error") {
		t.Errorf("missing error line in %q", out)
	}
}

func TestLogger_ComponentFilter(t *testing.T) {
	lg, buf := newBufferLogger(t, nil)

	lg.WithComponent(ComponentServer).Info("server up")
	lg.WithComponent(ComponentWBI).Info("mixin derived")

	out := buf.String()
	if !strings.Contains(out, "server up") {
		t.Error("server component is enabled by default")
	}
	if strings.Contains(out, "mixin derived") {
		t.Error("wbi component is disabled by default")
	}

	lg.EnableComponent(ComponentWBI)
	lg.WithComponent(ComponentWBI).Info("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("EnableComponent should take effect immediately")
	}
}

func TestLogger_TextFieldsSorted(t *testing.T) {
	lg, buf := newBufferLogger(t, nil)
	lg.WithComponent(ComponentApp).Info("resolved", map[string]interface{}{
		"qn":   112,
		"bvid": "BV1xx411c7mD",
		"cid":  "123456",
	})

	want := "[INFO] [app] resolved bvid=BV1xx411c7mD cid=123456 qn=112\n"
	if got := buf.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestLogger_MergesFieldMaps(t *testing.T) {
	lg, buf := newBufferLogger(t, nil)
	lg.WithComponent(ComponentApp).Info("m", Fields{"a": 1}, Fields{"b": 2})
	if !strings.Contains(buf.String(), "a=1 b=2") {
		t.Fatalf("fields not merged: %q", buf.String())
	}
}

func TestLogger_JSON(t *testing.T) {
	lg, buf := newBufferLogger(t, func(c *Config) { c.Format = FormatJSON })
	lg.WithComponent(ComponentServer).Warn("slow upstream", map[string]interface{}{"stage": "playurl"})

	var entry struct {
		Level     string                 `json:"level"`
		Component string                 `json:"component"`
		Message   string                 `json:"message"`
		Fields    map[string]interface{} `json:"fields"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v: %q", err, buf.String())
	}
	if entry.Level != "WARN" || entry.Component != "server" || entry.Message != "slow upstream" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Fields["stage"] != "playurl" {
		t.Fatalf("fields = %v", entry.Fields)
	}
}

func TestLogger_ColorFormat(t *testing.T) {
	lg, buf := newBufferLogger(t, func(c *Config) { c.Format = FormatColor })
	lg.WithComponent(ComponentApp).Error("boom")
	if !strings.Contains(buf.String(), "\033[91m[ERROR]") {
		t.Fatalf("expected red level marker, got %q", buf.String())
	}
}

func TestLogger_Caller(t *testing.T) {
	lg, buf := newBufferLogger(t, func(c *Config) { c.ShowCaller = true })
	lg.WithComponent(ComponentApp).Info("where")
	if !strings.Contains(buf.String(), "(logger_test.go:") {
		t.Fatalf("caller should point at the test file, got %q", buf.String())
	}
}

func TestGlobalLoggerSwap(t *testing.T) {
	prev := GetGlobalLogger()
	t.Cleanup(func() { SetGlobalLogger(prev) })

	handle := WithComponent(ComponentResolver)

	lg, buf := newBufferLogger(t, nil)
	SetGlobalLogger(lg)
	handle.Info("after swap")

	if !strings.Contains(buf.String(), "after swap") {
		t.Fatal("handles created before SetGlobalLogger should follow the new logger")
	}
}

func TestLogger_Concurrent(t *testing.T) {
	lg, buf := newBufferLogger(t, nil)
	cl := lg.WithComponent(ComponentApp)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cl.Info("tick", Fields{"i": i})
		}(i)
	}
	wg.Wait()

	if n := strings.Count(buf.String(), "\n"); n != 20 {
		t.Fatalf("got %d lines, want 20", n)
	}
}

func TestSettingsFromEnv(t *testing.T) {
	env := map[string]string{
		EnvLevel:      "debug",
		EnvFormat:     "json",
		EnvOutput:     "null",
		EnvComponents: " wbi, API ,",
		EnvTimestamp:  "1",
		EnvMaxBackups: "5",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	s, err := SettingsFromEnv(lookup)
	if err != nil {
		t.Fatalf("SettingsFromEnv: %v", err)
	}
	if s.Level != "debug" || s.Format != "json" || !s.Timestamp || s.MaxBackups != 5 {
		t.Fatalf("unexpected settings %+v", s)
	}
	if strings.Join(s.Components, ",") != "wbi,api" {
		t.Fatalf("components = %v", s.Components)
	}

	lg, closeFn, err := s.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer closeFn()
	if !lg.Enabled(DEBUG, ComponentWBI) || lg.Enabled(DEBUG, ComponentApp) {
		t.Fatal("component set from env not applied")
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{name: "defaults"},
		{name: "bad level", mutate: func(s *Settings) { s.Level = "loud" }, wantErr: true},
		{name: "bad format", mutate: func(s *Settings) { s.Format = "xml" }, wantErr: true},
		{name: "bad output", mutate: func(s *Settings) { s.Output = "syslog" }, wantErr: true},
		{name: "empty file path", mutate: func(s *Settings) { s.Output = "file:" }, wantErr: true},
		{name: "bad size", mutate: func(s *Settings) { s.MaxSize = "10XB" }, wantErr: true},
		{name: "file output", mutate: func(s *Settings) { s.Output = "file:/tmp/x.log" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			if tt.mutate != nil {
				tt.mutate(&s)
			}
			if err := s.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := map[string]int64{"": 0, "100": 100, "2KB": 2048, "10MB": 10 << 20, "1gb": 1 << 30}
	for in, want := range tests {
		got, err := parseSize(in)
		if err != nil || got != want {
			t.Errorf("parseSize(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	if _, err := parseSize("MB"); err == nil {
		t.Error("expected error for size without number")
	}
}

func TestRotatingWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "biliurl.log")
	rw, err := NewRotatingWriter(path, 10, 2)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	defer rw.Close()

	for _, line := range []string{"first-1234\n", "second-123\n", "third-1234\n", "fourth-123\n"} {
		if _, err := rw.Write([]byte(line)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	read := func(name string) string {
		b, err := os.ReadFile(name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		return string(b)
	}
	if got := read(path); got != "fourth-123\n" {
		t.Errorf("current = %q", got)
	}
	if got := read(path + ".1"); got != "third-1234\n" {
		t.Errorf("backup 1 = %q", got)
	}
	if got := read(path + ".2"); got != "second-123\n" {
		t.Errorf("backup 2 = %q", got)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("only two backups should be kept, stat err = %v", err)
	}
}

func TestRotatingWriterViaSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	s := DefaultSettings()
	s.Output = "file:" + path
	lg, closeFn, err := s.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	lg.WithComponent(ComponentApp).Info("to file")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(b), "to file") {
		t.Fatalf("file content = %q, %v", b, err)
	}
}

func TestLevelString(t *testing.T) {
	for lvl, name := range levelNames {
		if lvl.String() != name {
			t.Errorf("%d.String() = %q, want %q", lvl, lvl.String(), name)
		}
	}
	if Level(42).String() != "LEVEL(42)" {
		t.Errorf("unknown level = %q", Level(42).String())
	}
}
