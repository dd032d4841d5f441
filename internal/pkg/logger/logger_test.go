package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	SetLevel(DEBUG)
	SetRedactPII(true)
	t.Cleanup(func() {
		SetOutput(prev)
		SetLevel(INFO)
	})
	return &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]string {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestInfoWritesJSON(t *testing.T) {
	buf := captureLog(t)

	Info("pipeline finished", "input_rows", 12, "output_rows", 10)

	e := lastEntry(t, buf)
	assert.Equal(t, "INFO", e["level"])
	assert.Equal(t, "pipeline finished", e["msg"])
	assert.Equal(t, "12", e["input_rows"])
	assert.Equal(t, "10", e["output_rows"])
	assert.NotEmpty(t, e["time"])
}

func TestLevelFilter(t *testing.T) {
	buf := captureLog(t)
	SetLevel(WARN)

	Info("hidden")
	Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestRedaction(t *testing.T) {
	buf := captureLog(t)

	Info("row",
		"phone", "+1 (555) 123-4567",
		"first_name", "Maria",
		"column_name", "First Name",
		"audience_id", "23847239847239",
		"email", "maria@example.com",
		"note", "call +44 20 7946 0958 or bob@example.org",
	)

	e := lastEntry(t, buf)
	assert.Equal(t, "***67", e["phone"])
	assert.Equal(t, "M***", e["first_name"])
	assert.Equal(t, "First Name", e["column_name"])
	assert.Equal(t, "23847239847239", e["audience_id"])
	assert.Equal(t, "ma***@example.com", e["email"])
	assert.Equal(t, "call ***58 or bo***@example.org", e["note"])
}

func TestRedactionDisabled(t *testing.T) {
	buf := captureLog(t)
	SetRedactPII(false)
	defer SetRedactPII(true)

	Info("row", "phone", "5551234567")
	assert.Equal(t, "5551234567", lastEntry(t, buf)["phone"])
}

func TestOddFields(t *testing.T) {
	buf := captureLog(t)
	Error("oops", "dangling")
	assert.Equal(t, "dangling", lastEntry(t, buf)["!BADKEY"])
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel("debug")
	assert.True(t, ok)
	assert.Equal(t, DEBUG, l)

	l, ok = ParseLevel("Warning")
	assert.True(t, ok)
	assert.Equal(t, WARN, l)

	l, ok = ParseLevel("loud")
	assert.False(t, ok)
	assert.Equal(t, INFO, l)
}

func TestRedactHelpers(t *testing.T) {
	assert.Equal(t, "***", RedactPhone("12"))
	assert.Equal(t, "Ł***", RedactName(" Łukasz"))
	assert.Equal(t, "", RedactName(""))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
}
