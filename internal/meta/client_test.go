package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ignite/audience-hasher/internal/audience"
	"github.com/ignite/audience-hasher/internal/config"
	"github.com/ignite/audience-hasher/internal/pkg/httpretry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	path    string
	payload usersPayload
	session session
	token   string
	proof   string
}

func newTestClient(t *testing.T, handler http.HandlerFunc, batchSize int) (*Client, *[]recordedCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recordedCall
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		var c recordedCall
		c.path = r.URL.Path
		c.token = r.PostForm.Get("access_token")
		c.proof = r.PostForm.Get("appsecret_proof")
		if err := json.Unmarshal([]byte(r.PostForm.Get("payload")), &c.payload); err != nil {
			t.Errorf("payload: %v", err)
		}
		if err := json.Unmarshal([]byte(r.PostForm.Get("session")), &c.session); err != nil {
			t.Errorf("session: %v", err)
		}
		mu.Lock()
		calls = append(calls, c)
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client := NewClient(config.MetaConfig{
		BaseURL:        server.URL + "/",
		APIVersion:     "v19.0",
		AccessToken:    "test-token",
		AppSecret:      "test-secret",
		BatchSize:      batchSize,
		TimeoutSeconds: 5,
	})
	client.httpClient = httpretry.NewRetryClient(server.Client(), 1,
		httpretry.WithDelays(time.Millisecond, time.Millisecond, time.Millisecond))
	client.newSession = func() int64 { return 4242 }
	return client, &calls
}

func acceptAll(w http.ResponseWriter, r *http.Request) {
	var p usersPayload
	_ = json.Unmarshal([]byte(r.PostForm.Get("payload")), &p)
	fmt.Fprintf(w, `{"audience_id":"123","session_id":"4242","num_received":%d,"num_invalid_entries":0}`, len(p.Data))
}

func digestRows(n int) []audience.DigestRecord {
	rows := make([]audience.DigestRecord, n)
	for i := range rows {
		rows[i] = audience.DigestRecord{
			FN:    fmt.Sprintf("fn%02d", i),
			LN:    fmt.Sprintf("ln%02d", i),
			PHONE: fmt.Sprintf("ph%02d", i),
		}
	}
	return rows
}

func TestNewClient(t *testing.T) {
	c := NewClient(config.MetaConfig{BaseURL: "https://graph.facebook.com/", APIVersion: "v19.0", BatchSize: 50000})
	if c.baseURL != "https://graph.facebook.com" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
	if c.batchSize != MaxBatchSize {
		t.Errorf("batchSize = %d, want %d", c.batchSize, MaxBatchSize)
	}
	if c.newSession() <= 0 {
		t.Error("session ids must be positive")
	}
}

func TestAppSecretProof(t *testing.T) {
	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog")
	got := AppSecretProof("The quick brown fox jumps over the lazy dog", "key")
	want := "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if got != want {
		t.Errorf("AppSecretProof = %s, want %s", got, want)
	}
}

func TestValidateAudienceID(t *testing.T) {
	for _, id := range []string{"123", "23847239847239"} {
		assert.NoError(t, ValidateAudienceID(id), id)
	}
	for _, id := range []string{"", "abc", "12a", "-12", "1.5", "12/users"} {
		assert.ErrorIs(t, ValidateAudienceID(id), ErrInvalidAudienceID, id)
	}
}

func TestAddUsersBatches(t *testing.T) {
	client, calls := newTestClient(t, acceptAll, 2)

	rows := digestRows(5)
	rows = append(rows, audience.DigestRecord{FN: "x", LN: "", PHONE: "y"})

	res, err := client.AddUsers(context.Background(), "123", rows)
	require.NoError(t, err)

	assert.Equal(t, int64(4242), res.SessionID)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 5, res.Submitted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 5, res.NumReceived)
	assert.Equal(t, 0, res.NumInvalid)

	require.Len(t, *calls, 3)
	for i, c := range *calls {
		assert.Equal(t, "/v19.0/123/users", c.path)
		assert.Equal(t, "test-token", c.token)
		assert.Equal(t, AppSecretProof("test-token", "test-secret"), c.proof)
		assert.Equal(t, []string{"FN", "LN", "PHONE"}, c.payload.Schema)
		assert.Equal(t, int64(4242), c.session.SessionID)
		assert.Equal(t, i+1, c.session.BatchSeq)
		assert.Equal(t, 5, c.session.EstimatedNumTotal)
		assert.Equal(t, i == 2, c.session.LastBatchFlag)
	}
	assert.Equal(t, [][]string{{"fn00", "ln00", "ph00"}, {"fn01", "ln01", "ph01"}}, (*calls)[0].payload.Data)
	assert.Len(t, (*calls)[2].payload.Data, 1)
}

func TestAddUsersBeforeBatch(t *testing.T) {
	client, _ := newTestClient(t, acceptAll, 2)

	var seqs []int
	result, err := client.AddUsers(context.Background(), "123", digestRows(5),
		BeforeBatch(func(_ context.Context, seq int) error {
			seqs = append(seqs, seq)
			return nil
		}))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Batches)
	assert.Equal(t, []int{2, 3}, seqs, "not called before the first batch")

	lost := errors.New("lock no longer owned")
	client, calls := newTestClient(t, acceptAll, 2)
	result, err = client.AddUsers(context.Background(), "123", digestRows(5),
		BeforeBatch(func(_ context.Context, seq int) error {
			if seq == 3 {
				return lost
			}
			return nil
		}))
	assert.ErrorIs(t, err, lost)
	assert.Contains(t, err.Error(), "batch 3")
	assert.Equal(t, 2, result.Batches)
	assert.Len(t, *calls, 2, "third batch never sent")
}

func TestAddUsersNoSecretOmitsProof(t *testing.T) {
	client, calls := newTestClient(t, acceptAll, 10)
	client.appSecret = ""

	_, err := client.AddUsers(context.Background(), "123", digestRows(1))
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	assert.Empty(t, (*calls)[0].proof)
}

func TestAddUsersNoRows(t *testing.T) {
	client, calls := newTestClient(t, acceptAll, 10)

	res, err := client.AddUsers(context.Background(), "123", []audience.DigestRecord{{FN: "a"}})
	assert.ErrorIs(t, err, ErrNoRows)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, *calls)

	_, err = client.AddUsers(context.Background(), "123", nil)
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestAddUsersRejectsBadInput(t *testing.T) {
	client, calls := newTestClient(t, acceptAll, 10)

	_, err := client.AddUsers(context.Background(), "act_123", digestRows(1))
	assert.ErrorIs(t, err, ErrInvalidAudienceID)

	client.accessToken = ""
	_, err = client.AddUsers(context.Background(), "123", digestRows(1))
	assert.ErrorIs(t, err, ErrNoAccessToken)
	assert.Empty(t, *calls)
}

func TestAddUsersAPIError(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190,"fbtrace_id":"AbC123"}}`))
	}, 10)

	res, err := client.AddUsers(context.Background(), "123", digestRows(3))
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, 190, apiErr.Code)
	assert.Equal(t, "OAuthException", apiErr.Type)
	assert.Equal(t, "AbC123", apiErr.TraceID)
	assert.False(t, apiErr.Temporary())
	assert.Contains(t, err.Error(), "batch 1")
	assert.Equal(t, 0, res.Batches)
	assert.Len(t, *calls, 1, "client errors are not retried")
}

func TestAddUsersRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		acceptAll(w, r)
	}, 10)

	res, err := client.AddUsers(context.Background(), "123", digestRows(2))
	require.NoError(t, err)
	assert.Equal(t, 2, res.NumReceived)
	assert.Equal(t, 2, attempts)
}

func TestDecodeErrorWithoutEnvelope(t *testing.T) {
	err := decodeError(http.StatusBadGateway, []byte("  upstream timeout \n"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "upstream timeout", apiErr.Message)
	assert.Equal(t, http.StatusBadGateway, apiErr.Code)

	err = decodeError(http.StatusInternalServerError, nil)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Internal Server Error", apiErr.Message)
}

func TestAPIErrorTemporary(t *testing.T) {
	assert.True(t, (&APIError{Code: 17}).Temporary())
	assert.True(t, (&APIError{Code: 2}).Temporary())
	assert.False(t, (&APIError{Code: 100}).Temporary())
}

func TestUploadResultString(t *testing.T) {
	r := UploadResult{SessionID: 7, Batches: 2, NumReceived: 15000, NumInvalid: 3}
	assert.Equal(t, "session 7: 2 batches, 15000 received, 3 invalid", r.String())
}
