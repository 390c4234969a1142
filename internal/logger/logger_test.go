package logger

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := levelFromString(in); got != want {
			t.Errorf("levelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInit_Dev(t *testing.T) {
	l, err := Init(Config{Level: "debug", Dev: true})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Error("dev logger should enable debug")
	}
}

func TestInit_ProductionLevel(t *testing.T) {
	l, err := Init(Config{Level: "warn"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !l.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("error should be enabled at warn level")
	}
}

func TestInit_FileSink(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "app.log")
	l, err := Init(Config{Level: "info", File: prefix})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	l.Info("hello")
	_ = l.Sync()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected a rotated log file to be created")
	}
}
