package meta

import (
	"errors"
	"fmt"
)

// MaxBatchSize is the most rows the users edge accepts per request.
const MaxBatchSize = 10000

var (
	// ErrNoRows is returned when there is nothing complete left to upload.
	ErrNoRows = errors.New("no complete rows to upload")
	// ErrInvalidAudienceID is returned for empty or non-numeric audience IDs.
	ErrInvalidAudienceID = errors.New("invalid audience id")
	// ErrNoAccessToken is returned when the client has no access token.
	ErrNoAccessToken = errors.New("access token not configured")
)

// APIError is the error envelope returned by the Graph API.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode,omitempty"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph API error (status %d, %s code %d): %s [trace %s]",
		e.StatusCode, e.Type, e.Code, e.Message, e.TraceID)
}

// Temporary reports whether Graph marks the failure as transient.
// Codes 1, 2, 4 and 17 are throttling or service hiccups.
func (e *APIError) Temporary() bool {
	switch e.Code {
	case 1, 2, 4, 17:
		return true
	}
	return false
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

// usersPayload is the JSON carried in the payload form field.
type usersPayload struct {
	Schema []string   `json:"schema"`
	Data   [][]string `json:"data"`
}

// session ties batches of one upload together.
type session struct {
	SessionID         int64 `json:"session_id"`
	BatchSeq          int   `json:"batch_seq"`
	LastBatchFlag     bool  `json:"last_batch_flag"`
	EstimatedNumTotal int   `json:"estimated_num_total"`
}

// usersResponse is the body of a successful users call.
type usersResponse struct {
	AudienceID        string `json:"audience_id"`
	SessionID         string `json:"session_id"`
	NumReceived       int    `json:"num_received"`
	NumInvalidEntries int    `json:"num_invalid_entries"`
}

// UploadResult aggregates every batch of one upload session.
type UploadResult struct {
	SessionID   int64 `json:"session_id"`
	Batches     int   `json:"batches"`
	Submitted   int   `json:"submitted"`
	Skipped     int   `json:"skipped"`
	NumReceived int   `json:"num_received"`
	NumInvalid  int   `json:"num_invalid"`
}
