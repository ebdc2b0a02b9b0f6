package cloud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

type ProviderType string

const (
	ProviderGoogleDrive ProviderType = "google-drive"
	ProviderOneDrive    ProviderType = "onedrive"
)

type ErrorCode string

const (
	ErrAuthFailed       ErrorCode = "AUTH_FAILED"
	ErrPermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrQuotaExceeded    ErrorCode = "QUOTA_EXCEEDED"
	ErrNetwork          ErrorCode = "NETWORK_ERROR"
	ErrUnknown          ErrorCode = "UNKNOWN"
)

// Error is the uniform failure shape for every provider call. Calling code
// branches on Code, never on provider identity.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CloudFile is the canonical cross-provider file record. Produced fresh from
// each API call; never persisted.
type CloudFile struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	MimeType   string       `json:"mimeType"`
	Size       int64        `json:"size"`
	CreatedAt  time.Time    `json:"createdAt"`
	ModifiedAt time.Time    `json:"modifiedAt"`
	ParentIDs  []string     `json:"parentIDs,omitempty"`
	Provider   ProviderType `json:"provider"`
	IsFolder   bool         `json:"isFolder"`
}

// UploadInput carries the bytes and metadata for an upload.
type UploadInput struct {
	Name     string
	MimeType string
	Size     int64
	Content  io.Reader
}

// Provider is the capability surface each cloud backend implements. An empty
// folderID on GetFiles means "everything", which both providers satisfy with a
// recursive walk from their root.
type Provider interface {
	Type() ProviderType
	GetFiles(ctx context.Context, folderID string) ([]CloudFile, error)
	GetFile(ctx context.Context, fileID string) (*CloudFile, error)
	DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error)
	UploadFile(ctx context.Context, in UploadInput, folderID string) (*CloudFile, error)
	CreateFolder(ctx context.Context, name, parentID string) (*CloudFile, error)
	DeleteFile(ctx context.Context, fileID string) error
	MoveFile(ctx context.Context, fileID, newParentID string) (*CloudFile, error)
	SearchFiles(ctx context.Context, query string) ([]CloudFile, error)
}

// apiClient is the shared HTTP base under both providers: bearer-token
// injection from an oauth2.TokenSource plus the uniform status-to-error
// mapping. A new provider implements the eight capability methods and
// inherits the error taxonomy from here.
type apiClient struct {
	http   *http.Client
	tokens oauth2.TokenSource
}

func newAPIClient(tokens oauth2.TokenSource) *apiClient {
	return &apiClient{
		http:   &http.Client{Timeout: 5 * time.Minute},
		tokens: tokens,
	}
}

// do executes one authenticated request and maps the response status onto the
// shared error taxonomy. On success the caller owns the response body.
func (c *apiClient) do(ctx context.Context, method, url string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &Error{Code: ErrUnknown, Message: err.Error()}
	}

	token, err := c.tokens.Token()
	if err != nil {
		return nil, &Error{Code: ErrAuthFailed, Message: fmt.Sprintf("no bearer token available: %v", err)}
	}
	token.SetAuthHeader(req)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Code: ErrNetwork, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, mapStatusError(resp.StatusCode)
	}

	return resp, nil
}

func mapStatusError(status int) *Error {
	switch status {
	case http.StatusUnauthorized:
		return &Error{Code: ErrAuthFailed, Message: "authentication failed, token may be expired"}
	case http.StatusForbidden:
		return &Error{Code: ErrPermissionDenied, Message: "insufficient permissions for this operation"}
	case http.StatusInsufficientStorage:
		return &Error{Code: ErrQuotaExceeded, Message: "provider storage quota exceeded"}
	default:
		return &Error{Code: ErrUnknown, Message: fmt.Sprintf("request failed with status %d", status)}
	}
}
