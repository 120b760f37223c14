package sysutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetLogLevel(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	cases := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"  DeBuG ": zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		"":         zerolog.InfoLevel,
		"WARNING":  zerolog.WarnLevel,
		"warn":     zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"panic":    zerolog.PanicLevel,
		"verbose":  zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := SetLogLevel(in); got != want || zerolog.GlobalLevel() != want {
			t.Fatalf("SetLogLevel(%q) = %v (global %v), want %v", in, got, zerolog.GlobalLevel(), want)
		}
	}
}

func TestSetupLogging_JSONAndPretty(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	SetupLogging(&buf, "warn", false, "chat")
	log.Info().Msg("dropped")
	log.Warn().Msg("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info should be filtered at warn: %s", out)
	}
	if !strings.Contains(out, `"service":"chat"`) || !strings.Contains(out, `"message":"kept"`) {
		t.Fatalf("unexpected JSON log: %s", out)
	}

	buf.Reset()
	SetupLogging(&buf, "info", true, "chat")
	log.Info().Msg("hello")
	if strings.Contains(buf.String(), `"message"`) || !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected console output, got: %s", buf.String())
	}
}

func TestFirstNonEmpty(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{" ", "\t", "\n"}, ""},
		{[]string{"", "  v1.4.0 ", "dev"}, "  v1.4.0 "},
		{[]string{"v2", "dev"}, "v2"},
	}
	for _, tc := range cases {
		if got := FirstNonEmpty(tc.in...); got != tc.want {
			t.Fatalf("FirstNonEmpty(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
