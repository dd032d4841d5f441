package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/audience-hasher/internal/audience"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

const customersCSV = `First,Last,Mobile,Country,Brand
Jane,Doe,555-123-4567,USA,Acme
John,Smith,(555) 987-6543,United States,Acme
Jane,Doe-Updated,5551234567,US,Globex
Ana,Lima,11 91234 5678,Atlantis,Acme
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestRunUsage(t *testing.T) {
	code, _, stderr := execute(t)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "Usage: audience-hasher")

	code, _, stderr = execute(t, "frobnicate")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, `unknown command "frobnicate"`)

	code, stdout, _ := execute(t, "help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "upload")

	code, stdout, _ = execute(t, "version")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "audience-hasher dev")
}

func TestColumns(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "customers.csv", customersCSV)

	code, stdout, stderr := execute(t, "columns", "--input", input, "--rows", "2")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "Mobile")
	assert.Contains(t, stdout, "Brand")
	assert.Contains(t, stdout, "First 2 of 4 rows")
	assert.Contains(t, stdout, "Smith")
	assert.NotContains(t, stdout, "Lima")
	assert.Contains(t, stdout, "Suggested mapping")
	assert.Contains(t, stdout, "--phone")
}

func TestColumnsMissingInput(t *testing.T) {
	code, _, stderr := execute(t, "columns")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "--input is required")

	code, _, _ = execute(t, "columns", "--input", filepath.Join(t.TempDir(), "nope.csv"))
	assert.Equal(t, exitFailure, code)
}

func TestHashWritesDigests(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "customers.csv", customersCSV)
	output := filepath.Join(dir, "out", "digests.csv")

	code, stdout, stderr := execute(t, "hash",
		"--input", input, "--output", output,
		"--first-name", "First", "--last-name", "Last",
		"--phone", "Mobile", "--country", "Country",
	)
	require.Equal(t, exitOK, code, stderr)

	lines := readLines(t, output)
	require.Len(t, lines, 4, "header plus three unique phones")
	assert.Equal(t, "FN,LN,PHONE", lines[0])

	first := strings.Split(lines[1], ",")
	assert.Equal(t, audience.HashValue("jane"), first[0])
	assert.Equal(t, audience.HashValue("doeupdated"), first[1], "last row wins for a repeated phone")
	assert.Equal(t, audience.HashValue("+15551234567"), first[2])

	assert.Contains(t, stdout, "Cleaned preview")
	assert.Contains(t, stdout, "+15559876543")
	assert.Contains(t, stdout, "Atlantis")
	assert.Contains(t, stdout, "wrote 3 rows")
	assert.NotContains(t, stderr, "Jane", "names never reach the log")
}

func TestHashShowsClosestCountry(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "customers.csv", `First,Last,Mobile,Country
Lena,Vogel,030 1234567,Germny
Otto,Kranz,030 7654321,Germany
`)
	output := filepath.Join(dir, "digests.csv")

	code, stdout, stderr := execute(t, "hash",
		"--input", input, "--output", output,
		"--first-name", "First", "--last-name", "Last",
		"--phone", "Mobile", "--country", "Country",
	)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "Closest country")
	assert.Contains(t, stdout, "Germny")

	lines := readLines(t, output)
	require.Len(t, lines, 3)
	assert.Equal(t, audience.HashValue("0301234567"), strings.Split(lines[1], ",")[2], "a hint never adds a prefix")
	assert.Equal(t, audience.HashValue("+490307654321"), strings.Split(lines[2], ",")[2])
}

func TestHashFilter(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "customers.csv", customersCSV)
	output := filepath.Join(dir, "digests.csv")

	code, _, stderr := execute(t, "hash",
		"--input", input, "--output", output,
		"--first-name", "First", "--last-name", "Last",
		"--phone", "Mobile", "--country", "Country",
		"--filter-column", "Brand", "--filter-value", "Globex",
		"--preview", "0",
	)
	require.Equal(t, exitOK, code, stderr)

	lines := readLines(t, output)
	require.Len(t, lines, 2)
	assert.Equal(t, audience.HashValue("doeupdated"), strings.Split(lines[1], ",")[1])
}

func TestHashEmptyResult(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "customers.csv", customersCSV)
	output := filepath.Join(dir, "digests.csv")

	code, _, stderr := execute(t, "hash",
		"--input", input, "--output", output,
		"--first-name", "First", "--last-name", "Last",
		"--phone", "Mobile", "--country", "Country",
		"--filter-column", "Brand", "--filter-value", "Initech",
	)
	assert.Equal(t, exitEmpty, code)
	assert.Contains(t, stderr, "Nothing to export")
	assert.NoFileExists(t, output)
}

func TestHashMissingColumn(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "customers.csv", customersCSV)

	code, _, stderr := execute(t, "hash",
		"--input", input, "--output", filepath.Join(dir, "digests.csv"),
		"--first-name", "First", "--last-name", "Last",
		"--phone", "Telephone", "--country", "Country",
	)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, `"Telephone"`)
}

func TestHashUsageErrors(t *testing.T) {
	code, _, _ := execute(t, "hash", "--input", "x.csv")
	assert.Equal(t, exitUsage, code)

	code, _, _ = execute(t, "hash", "--input", "x.csv", "--output", "y.csv", "--filter-column", "Brand")
	assert.Equal(t, exitUsage, code)

	code, _, _ = execute(t, "hash", "--bogus")
	assert.Equal(t, exitUsage, code)

	code, _, _ = execute(t, "hash", "--help")
	assert.Equal(t, exitOK, code)
}

func TestHashUsesConfigMapping(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "customers.csv", customersCSV)
	output := filepath.Join(dir, "digests.csv")
	cfgPath := writeFile(t, dir, "config.yaml", `
pipeline:
  mapping:
    first_name: First
    last_name: Last
    phone: Mobile
    country: Country
`)

	code, _, stderr := execute(t, "hash", "--config", cfgPath, "--input", input, "--output", output)
	require.Equal(t, exitOK, code, stderr)
	assert.Len(t, readLines(t, output), 4)
}

type graphStub struct {
	mu       sync.Mutex
	paths    []string
	rows     int
	sessions []string
	onCall   func(n int)
}

func (g *graphStub) handler(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	var payload struct {
		Schema []string   `json:"schema"`
		Data   [][]string `json:"data"`
	}
	_ = json.Unmarshal([]byte(r.PostForm.Get("payload")), &payload)

	g.mu.Lock()
	g.paths = append(g.paths, r.URL.Path)
	g.rows += len(payload.Data)
	g.sessions = append(g.sessions, r.PostForm.Get("session"))
	n := len(g.paths)
	g.mu.Unlock()
	if g.onCall != nil {
		g.onCall(n)
	}

	fmt.Fprintf(w, `{"audience_id":"123","num_received":%d,"num_invalid_entries":0}`, len(payload.Data))
}

func TestHashThenUpload(t *testing.T) {
	stub := &graphStub{}
	srv := httptest.NewServer(http.HandlerFunc(stub.handler))
	defer srv.Close()

	dir := t.TempDir()
	input := writeFile(t, dir, "customers.csv", customersCSV)
	digests := filepath.Join(dir, "digests.csv")
	cfgPath := writeFile(t, dir, "config.yaml", fmt.Sprintf(`
meta:
  base_url: %q
  access_token: "test-token"
  app_secret: "test-secret"
  max_retries: 1
`, srv.URL))

	code, _, stderr := execute(t, "hash", "--input", input, "--output", digests,
		"--first-name", "First", "--last-name", "Last", "--phone", "Mobile", "--country", "Country")
	require.Equal(t, exitOK, code, stderr)

	code, stdout, stderr := execute(t, "upload", "--config", cfgPath,
		"--input", digests, "--audience-id", "123", "--batch-size", "2")
	require.Equal(t, exitOK, code, stderr)

	assert.Equal(t, []string{"/v19.0/123/users", "/v19.0/123/users"}, stub.paths)
	assert.Equal(t, 3, stub.rows)
	assert.Contains(t, stub.sessions[1], `"last_batch_flag":true`)
	assert.Contains(t, stdout, "2 batches, 3 received")
}

func TestUploadRenewsLockBetweenBatches(t *testing.T) {
	mr := miniredis.RunT(t)
	const key = "lock:audience-upload:123"

	stub := &graphStub{}
	stub.onCall = func(n int) {
		assert.True(t, mr.Exists(key), "lock held during batch %d", n)
		if n > 1 {
			assert.Greater(t, mr.TTL(key), 5*time.Second, "renewed before batch %d", n)
		}
		mr.FastForward(8 * time.Second)
	}
	srv := httptest.NewServer(http.HandlerFunc(stub.handler))
	defer srv.Close()

	dir := t.TempDir()
	digests := writeFile(t, dir, "digests.csv", "FN,LN,PHONE\na,b,c\nd,e,f\ng,h,i\n")
	cfgPath := writeFile(t, dir, "config.yaml", fmt.Sprintf(`
meta:
  base_url: %q
  access_token: "test-token"
  max_retries: 1
redis:
  url: "redis://%s"
  lock_ttl_seconds: 10
`, srv.URL, mr.Addr()))

	code, _, stderr := execute(t, "upload", "--config", cfgPath,
		"--input", digests, "--audience-id", "123", "--batch-size", "1")
	require.Equal(t, exitOK, code, stderr)

	assert.Len(t, stub.paths, 3)
	assert.False(t, mr.Exists(key), "released after upload")
}

func TestUploadErrors(t *testing.T) {
	dir := t.TempDir()

	code, _, _ := execute(t, "upload", "--input", "d.csv", "--audience-id", "act_1")
	assert.Equal(t, exitUsage, code)

	code, _, _ = execute(t, "upload", "--input", "d.csv", "--audience-id", "1", "--batch-size", "20000")
	assert.Equal(t, exitUsage, code)

	empty := writeFile(t, dir, "empty.csv", "FN,LN,PHONE\n,,\n")
	cfgPath := writeFile(t, dir, "config.yaml", "meta:\n  access_token: \"tok\"\n")
	code, _, stderr := execute(t, "upload", "--config", cfgPath, "--input", empty, "--audience-id", "1")
	assert.Equal(t, exitEmpty, code, stderr)

	wrong := writeFile(t, dir, "wrong.csv", "A,B\n1,2\n")
	code, _, stderr = execute(t, "upload", "--config", cfgPath, "--input", wrong, "--audience-id", "1")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "missing required column")
}
