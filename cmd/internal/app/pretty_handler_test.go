package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestStripANSI(t *testing.T) {
	t.Parallel()

	in := ansiBlue + "INF" + ansiReset + " plain " + ansiRed + "ERR" + ansiReset
	if got, want := stripANSI(in), "INF plain ERR"; got != want {
		t.Fatalf("stripANSI()=%q want=%q", got, want)
	}
}

func TestPrettyHandler_PlainLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false))

	log.With("component", "api").Info("http.request",
		"method", "post",
		"path", "/rsvp/resolve",
		"status", 410,
		"code", "TOKEN_EXPIRED",
		"user_agent", "curl 8.0",
	)
	log.Debug("hidden")

	out := buf.String()
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", out)
	}
	for _, want := range []string{
		"INF http.request",
		"component=api",
		"method=POST",
		"path=/rsvp/resolve",
		"status=410",
		"code=TOKEN_EXPIRED",
		`user_agent="curl 8.0"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("unexpected ANSI codes with color disabled: %q", out)
	}
}

func TestPrettyHandler_ColorAndGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, true)).WithGroup("req")

	log.Error("rsvp.resolve.fail", "status", 500, slog.Group("db", "op", "get"))

	out := buf.String()
	if !strings.Contains(out, ansiRed+"ERR"+ansiReset) {
		t.Fatalf("expected red level tag in %q", out)
	}
	plain := stripANSI(out)
	if !strings.Contains(plain, "req.status=500") || !strings.Contains(plain, "req.db.op=get") {
		t.Fatalf("group prefixes missing in %q", plain)
	}
}
