package logger

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogLevel_Ordering(t *testing.T) {
	assert.True(t, DEBUG < INFO)
	assert.True(t, INFO < WARN)
	assert.True(t, WARN < ERROR)
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN)
	l.logger = log.New(&buf, "", 0)

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "[WARN] warn message")
	assert.Contains(t, out, "[ERROR] error message")
}

func TestLogger_MessageFormatting(t *testing.T) {
	var buf bytes.Buffer
	l := New(DEBUG)
	l.logger = log.New(&buf, "", 0)

	l.Error("reject count %d for %s", 3, "block-42")
	assert.Contains(t, buf.String(), "[ERROR] reject count 3 for block-42")
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":      INFO,
		"info":  INFO,
		"DEBUG": DEBUG,
		"warn":  WARN,
		"error": ERROR,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}
