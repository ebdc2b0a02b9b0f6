package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	driveBaseURL   = "https://www.googleapis.com/drive/v3"
	driveUploadURL = "https://www.googleapis.com/upload/drive/v3"

	// Drive has no folder type; a folder is a file with this MIME type.
	driveFolderMimeType = "application/vnd.google-apps.folder"

	driveFileFields = "id,name,mimeType,size,parents,createdTime,modifiedTime"
)

type GoogleDriveProvider struct {
	client *apiClient

	baseURL   string
	uploadURL string
}

func NewGoogleDriveProvider(tokens oauth2.TokenSource) *GoogleDriveProvider {
	return &GoogleDriveProvider{
		client:    newAPIClient(tokens),
		baseURL:   driveBaseURL,
		uploadURL: driveUploadURL,
	}
}

func (p *GoogleDriveProvider) Type() ProviderType {
	return ProviderGoogleDrive
}

type driveFile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size,string"`
	Parents      []string  `json:"parents"`
	CreatedTime  time.Time `json:"createdTime"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

type driveFileList struct {
	Files         []driveFile `json:"files"`
	NextPageToken string      `json:"nextPageToken"`
}

func (f *driveFile) toCloudFile() CloudFile {
	return CloudFile{
		ID:         f.ID,
		Name:       f.Name,
		MimeType:   f.MimeType,
		Size:       f.Size,
		CreatedAt:  f.CreatedTime,
		ModifiedAt: f.ModifiedTime,
		ParentIDs:  f.Parents,
		Provider:   ProviderGoogleDrive,
		IsFolder:   f.MimeType == driveFolderMimeType,
	}
}

// GetFiles lists the contents of folderID, or of the entire drive when
// folderID is empty. Drive has no deep-list primitive, so the full listing is
// a breadth-first walk over every discovered folder; the visited set guards
// against listing the same folder twice (a file can have multiple parents).
func (p *GoogleDriveProvider) GetFiles(ctx context.Context, folderID string) ([]CloudFile, error) {
	if folderID != "" {
		return p.listChildren(ctx, folderID)
	}

	var all []CloudFile
	queue := []string{"root"}
	visited := map[string]bool{"root": true}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := p.listChildren(ctx, current)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			all = append(all, child)
			if child.IsFolder && !visited[child.ID] {
				visited[child.ID] = true
				queue = append(queue, child.ID)
			}
		}
	}
	return all, nil
}

func (p *GoogleDriveProvider) listChildren(ctx context.Context, folderID string) ([]CloudFile, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", escapeDriveQuery(folderID))

	var result []CloudFile
	pageToken := ""
	for {
		params := url.Values{}
		params.Set("q", query)
		params.Set("fields", fmt.Sprintf("files(%s),nextPageToken", driveFileFields))
		params.Set("pageSize", "1000")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page driveFileList
		if err := p.getJSON(ctx, p.baseURL+"/files?"+params.Encode(), &page); err != nil {
			return nil, err
		}
		for i := range page.Files {
			result = append(result, page.Files[i].toCloudFile())
		}
		if page.NextPageToken == "" {
			return result, nil
		}
		pageToken = page.NextPageToken
	}
}

func (p *GoogleDriveProvider) GetFile(ctx context.Context, fileID string) (*CloudFile, error) {
	var f driveFile
	if err := p.getJSON(ctx, fmt.Sprintf("%s/files/%s?fields=%s", p.baseURL, url.PathEscape(fileID), url.QueryEscape(driveFileFields)), &f); err != nil {
		return nil, err
	}
	cf := f.toCloudFile()
	return &cf, nil
}

func (p *GoogleDriveProvider) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := p.client.do(ctx, http.MethodGet, fmt.Sprintf("%s/files/%s?alt=media", p.baseURL, url.PathEscape(fileID)), nil, "")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// UploadFile sends metadata and content in one multipart/related request.
func (p *GoogleDriveProvider) UploadFile(ctx context.Context, in UploadInput, folderID string) (*CloudFile, error) {
	metadata := map[string]interface{}{
		"name": in.Name,
	}
	if folderID != "" {
		metadata["parents"] = []string{folderID}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, &Error{Code: ErrUnknown, Message: err.Error()}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return nil, &Error{Code: ErrUnknown, Message: err.Error()}
	}
	if _, err := metaPart.Write(metadataJSON); err != nil {
		return nil, &Error{Code: ErrUnknown, Message: err.Error()}
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaType := in.MimeType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	mediaHeader.Set("Content-Type", mediaType)
	mediaPart, err := writer.CreatePart(mediaHeader)
	if err != nil {
		return nil, &Error{Code: ErrUnknown, Message: err.Error()}
	}
	if _, err := io.Copy(mediaPart, in.Content); err != nil {
		return nil, &Error{Code: ErrNetwork, Message: err.Error()}
	}
	if err := writer.Close(); err != nil {
		return nil, &Error{Code: ErrUnknown, Message: err.Error()}
	}

	uploadURL := fmt.Sprintf("%s/files?uploadType=multipart&fields=%s", p.uploadURL, url.QueryEscape(driveFileFields))
	contentType := fmt.Sprintf("multipart/related; boundary=%s", writer.Boundary())

	resp, err := p.client.do(ctx, http.MethodPost, uploadURL, &body, contentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var f driveFile
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, &Error{Code: ErrUnknown, Message: fmt.Sprintf("decoding upload response: %v", err)}
	}
	cf := f.toCloudFile()
	return &cf, nil
}

func (p *GoogleDriveProvider) CreateFolder(ctx context.Context, name, parentID string) (*CloudFile, error) {
	payload := map[string]interface{}{
		"name":     name,
		"mimeType": driveFolderMimeType,
	}
	if parentID != "" {
		payload["parents"] = []string{parentID}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Code: ErrUnknown, Message: err.Error()}
	}

	resp, err := p.client.do(ctx, http.MethodPost, fmt.Sprintf("%s/files?fields=%s", p.baseURL, url.QueryEscape(driveFileFields)), bytes.NewReader(payloadJSON), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var f driveFile
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, &Error{Code: ErrUnknown, Message: fmt.Sprintf("decoding create folder response: %v", err)}
	}
	cf := f.toCloudFile()
	return &cf, nil
}

func (p *GoogleDriveProvider) DeleteFile(ctx context.Context, fileID string) error {
	resp, err := p.client.do(ctx, http.MethodDelete, fmt.Sprintf("%s/files/%s", p.baseURL, url.PathEscape(fileID)), nil, "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// MoveFile is an add-parent/remove-parent patch: a Drive file can have
// several parents, so a move removes all current ones.
func (p *GoogleDriveProvider) MoveFile(ctx context.Context, fileID, newParentID string) (*CloudFile, error) {
	current, err := p.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("addParents", newParentID)
	params.Set("removeParents", strings.Join(current.ParentIDs, ","))
	params.Set("fields", driveFileFields)

	resp, err := p.client.do(ctx, http.MethodPatch, fmt.Sprintf("%s/files/%s?%s", p.baseURL, url.PathEscape(fileID), params.Encode()), strings.NewReader("{}"), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var f driveFile
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, &Error{Code: ErrUnknown, Message: fmt.Sprintf("decoding move response: %v", err)}
	}
	cf := f.toCloudFile()
	return &cf, nil
}

func (p *GoogleDriveProvider) SearchFiles(ctx context.Context, query string) ([]CloudFile, error) {
	q := fmt.Sprintf("name contains '%s' and trashed = false", escapeDriveQuery(query))

	params := url.Values{}
	params.Set("q", q)
	params.Set("fields", fmt.Sprintf("files(%s)", driveFileFields))
	params.Set("pageSize", "100")

	var page driveFileList
	if err := p.getJSON(ctx, p.baseURL+"/files?"+params.Encode(), &page); err != nil {
		return nil, err
	}

	result := make([]CloudFile, 0, len(page.Files))
	for i := range page.Files {
		result = append(result, page.Files[i].toCloudFile())
	}
	return result, nil
}

func (p *GoogleDriveProvider) getJSON(ctx context.Context, requestURL string, out interface{}) error {
	resp, err := p.client.do(ctx, http.MethodGet, requestURL, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Code: ErrUnknown, Message: fmt.Sprintf("decoding response: %v", err)}
	}
	return nil
}

// escapeDriveQuery escapes single quotes and backslashes inside a Drive query
// string literal.
func escapeDriveQuery(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `'`, `\'`)
}
