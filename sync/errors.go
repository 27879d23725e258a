package sync

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

var (
	// ErrConfiguration is returned before any network call when the host configuration is unusable.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrAuthentication is returned when Loops rejects a credential.
	ErrAuthentication = errors.New("loops rejected the credential")
	// ErrUpstreamProtocol is returned for any other non-success response or a malformed body.
	ErrUpstreamProtocol = errors.New("unexpected response from loops")
	// ErrExportInitiation is returned when the export request did not yield a job id.
	ErrExportInitiation = errors.New("could not initiate loops export")
	// ErrExportSigning is returned when no presigned download url was issued.
	ErrExportSigning = errors.New("could not retrieve presigned download url for loops export")
	// ErrExportTimeout is returned when the export did not complete within the poll policy.
	ErrExportTimeout = errors.New("loops export did not complete in time")
	// ErrInvalidFieldName is returned by NormalizeName for names it cannot canonicalise.
	ErrInvalidFieldName = errors.New("invalid field name")
)

// LoopsError is a non-success HTTP response from one of the Loops endpoints.
type LoopsError struct {
	StatusCode int
	Message    string
}

func (e *LoopsError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("loops responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("loops responded with status %d: %s", e.StatusCode, e.Message)
}

// Unwrap classifies the response so callers can use errors.Is against the sentinels.
func (e *LoopsError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrAuthentication
	}
	return ErrUpstreamProtocol
}

// checkLoopsStatus is a requests validator that turns non-2xx responses into a *LoopsError.
// tRPC errors carry their message at error.json.message, the public API at message.
func checkLoopsStatus(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	result := &LoopsError{StatusCode: res.StatusCode}
	body, err := io.ReadAll(io.LimitReader(res.Body, 4096))
	if err == nil && gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		for _, path := range []string{"error.json.message", "message", "error"} {
			if m := parsed.Get(path); m.Type == gjson.String && m.String() != "" {
				result.Message = m.String()
				break
			}
		}
	}
	return result
}
