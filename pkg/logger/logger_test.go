package logx

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Not parallel: Init replaces the global logger.
func TestInitLevels(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.DefaultContextLogger = nil
	})

	Init(Config{Debug: true})
	if got := log.Logger.GetLevel(); got != zerolog.DebugLevel {
		t.Fatalf("debug level = %v", got)
	}
	if zerolog.DefaultContextLogger != &log.Logger {
		t.Fatal("context logger default not set")
	}

	Init()
	if got := log.Logger.GetLevel(); got != zerolog.InfoLevel {
		t.Fatalf("default level = %v", got)
	}
}
