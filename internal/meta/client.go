// Package meta uploads hashed identity digests to an existing Custom
// Audience through the Graph API users edge.
package meta

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ignite/audience-hasher/internal/audience"
	"github.com/ignite/audience-hasher/internal/config"
	"github.com/ignite/audience-hasher/internal/pkg/httpretry"
	"github.com/ignite/audience-hasher/internal/pkg/logger"
)

var validate = validator.New()

// Client is a Graph API client for Custom Audience membership.
type Client struct {
	baseURL     string
	version     string
	accessToken string
	appSecret   string
	batchSize   int
	httpClient  httpretry.HTTPDoer
	newSession  func() int64
}

// NewClient creates a client from configuration. Batch sizes outside
// 1..MaxBatchSize are clamped.
func NewClient(cfg config.MetaConfig) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		version:     cfg.APIVersion,
		accessToken: cfg.AccessToken,
		appSecret:   cfg.AppSecret,
		batchSize:   clampBatch(cfg.BatchSize),
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, cfg.MaxRetries),
		newSession: newSessionID,
	}
}

func clampBatch(n int) int {
	if n <= 0 || n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}

// newSessionID derives a positive int64 from a random UUID.
func newSessionID() int64 {
	id := uuid.New()
	return int64(binary.BigEndian.Uint64(id[:8]) >> 1)
}

// AppSecretProof is the hex HMAC-SHA256 of token keyed by secret.
func AppSecretProof(token, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateAudienceID checks the ID is a non-empty string of digits.
func ValidateAudienceID(id string) error {
	if err := validate.Var(id, "required,number"); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAudienceID, id)
	}
	return nil
}

// AddOption configures one AddUsers call.
type AddOption func(*addOptions)

type addOptions struct {
	beforeBatch func(ctx context.Context, batchSeq int) error
}

// BeforeBatch runs fn ahead of every batch after the first. An error from
// fn stops the upload before that batch is sent.
func BeforeBatch(fn func(ctx context.Context, batchSeq int) error) AddOption {
	return func(o *addOptions) { o.beforeBatch = fn }
}

// AddUsers adds rows to the audience in batches sharing one session.
// Incomplete rows are skipped and counted.
func (c *Client) AddUsers(ctx context.Context, audienceID string, rows []audience.DigestRecord, opts ...AddOption) (*UploadResult, error) {
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := ValidateAudienceID(audienceID); err != nil {
		return nil, err
	}
	if c.accessToken == "" {
		return nil, ErrNoAccessToken
	}

	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		if r.Complete() {
			data = append(data, r.Values())
		}
	}
	result := &UploadResult{SessionID: c.newSession(), Skipped: len(rows) - len(data)}
	if len(data) == 0 {
		return result, ErrNoRows
	}

	for start := 0; start < len(data); start += c.batchSize {
		end := min(start+c.batchSize, len(data))
		sess := session{
			SessionID:         result.SessionID,
			BatchSeq:          result.Batches + 1,
			LastBatchFlag:     end == len(data),
			EstimatedNumTotal: len(data),
		}
		if start > 0 && o.beforeBatch != nil {
			if err := o.beforeBatch(ctx, sess.BatchSeq); err != nil {
				return result, fmt.Errorf("batch %d: %w", sess.BatchSeq, err)
			}
		}
		resp, err := c.postUsers(ctx, audienceID, data[start:end], sess)
		if err != nil {
			return result, fmt.Errorf("batch %d: %w", sess.BatchSeq, err)
		}
		result.Batches++
		result.Submitted += end - start
		result.NumReceived += resp.NumReceived
		result.NumInvalid += resp.NumInvalidEntries

		logger.Info("audience batch uploaded",
			"audience_id", audienceID,
			"batch", sess.BatchSeq,
			"rows", end-start,
			"received", resp.NumReceived,
			"invalid", resp.NumInvalidEntries,
		)
	}
	return result, nil
}

func (c *Client) postUsers(ctx context.Context, audienceID string, data [][]string, sess session) (*usersResponse, error) {
	payload, err := json.Marshal(usersPayload{Schema: audience.DigestSchema, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}
	sessJSON, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("marshaling session: %w", err)
	}

	form := url.Values{}
	form.Set("payload", string(payload))
	form.Set("session", string(sessJSON))
	form.Set("access_token", c.accessToken)
	if c.appSecret != "" {
		form.Set("appsecret_proof", AppSecretProof(c.accessToken, c.appSecret))
	}

	fullURL := fmt.Sprintf("%s/%s/%s/users", c.baseURL, c.version, url.PathEscape(audienceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp.StatusCode, body)
	}

	var out usersResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parsing users response: %w", err)
	}
	return &out, nil
}

// decodeError turns a non-2xx body into *APIError. Bodies without the
// Graph envelope keep their text as the message.
func decodeError(status int, body []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		env.Error.StatusCode = status
		return env.Error
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg, Type: "HTTPError", Code: status}
}

// String renders a result for terminal summaries.
func (r UploadResult) String() string {
	return fmt.Sprintf("session %d: %d batches, %d received, %d invalid",
		r.SessionID, r.Batches, r.NumReceived, r.NumInvalid)
}
