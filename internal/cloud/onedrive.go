package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	graphBaseURL = "https://graph.microsoft.com/v1.0"

	// Graph's simple (single-request) upload is capped at 4 MB; anything
	// larger needs an upload session, which we do not implement.
	oneDriveSimpleUploadLimit = 4 * 1024 * 1024
)

type OneDriveProvider struct {
	client *apiClient

	baseURL string
}

func NewOneDriveProvider(tokens oauth2.TokenSource) *OneDriveProvider {
	return &OneDriveProvider{
		client:  newAPIClient(tokens),
		baseURL: graphBaseURL,
	}
}

func (p *OneDriveProvider) Type() ProviderType {
	return ProviderOneDrive
}

type graphItem struct {
	ID                   string              `json:"id"`
	Name                 string              `json:"name"`
	Size                 int64               `json:"size"`
	CreatedDateTime      time.Time           `json:"createdDateTime"`
	LastModifiedDateTime time.Time           `json:"lastModifiedDateTime"`
	File                 *graphFileFacet     `json:"file"`
	Folder               *graphFolderFacet   `json:"folder"`
	ParentReference      *graphItemReference `json:"parentReference"`
	DownloadURL          string              `json:"@microsoft.graph.downloadUrl"`
}

type graphFileFacet struct {
	MimeType string `json:"mimeType"`
}

type graphFolderFacet struct {
	ChildCount int `json:"childCount"`
}

type graphItemReference struct {
	ID string `json:"id"`
}

type graphItemList struct {
	Value    []graphItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

func (it *graphItem) toCloudFile() CloudFile {
	cf := CloudFile{
		ID:         it.ID,
		Name:       it.Name,
		Size:       it.Size,
		CreatedAt:  it.CreatedDateTime,
		ModifiedAt: it.LastModifiedDateTime,
		Provider:   ProviderOneDrive,
		IsFolder:   it.Folder != nil,
	}
	if it.File != nil {
		cf.MimeType = it.File.MimeType
	}
	if it.ParentReference != nil && it.ParentReference.ID != "" {
		cf.ParentIDs = []string{it.ParentReference.ID}
	}
	return cf
}

// GetFiles lists the children of folderID, or walks the whole drive
// breadth-first when folderID is empty. OneDrive items have exactly one
// parent, but the visited set stays as a guard against cyclic listings.
func (p *OneDriveProvider) GetFiles(ctx context.Context, folderID string) ([]CloudFile, error) {
	if folderID != "" {
		return p.listChildren(ctx, folderID)
	}

	root, err := p.getItem(ctx, p.baseURL+"/me/drive/root")
	if err != nil {
		return nil, err
	}

	var all []CloudFile
	queue := []string{root.ID}
	visited := map[string]bool{root.ID: true}

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

func (p *OneDriveProvider) listChildren(ctx context.Context, folderID string) ([]CloudFile, error) {
	var result []CloudFile
	next := fmt.Sprintf("%s/me/drive/items/%s/children", p.baseURL, url.PathEscape(folderID))
	for next != "" {
		var page graphItemList
		if err := p.getJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		for i := range page.Value {
			result = append(result, page.Value[i].toCloudFile())
		}
		next = page.NextLink
	}
	return result, nil
}

func (p *OneDriveProvider) GetFile(ctx context.Context, fileID string) (*CloudFile, error) {
	item, err := p.getItem(ctx, fmt.Sprintf("%s/me/drive/items/%s", p.baseURL, url.PathEscape(fileID)))
	if err != nil {
		return nil, err
	}
	cf := item.toCloudFile()
	return &cf, nil
}

// DownloadFile is two-step on Graph: fetch the item for its pre-authenticated
// download URL, then GET that URL without the bearer token.
func (p *OneDriveProvider) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	item, err := p.getItem(ctx, fmt.Sprintf("%s/me/drive/items/%s", p.baseURL, url.PathEscape(fileID)))
	if err != nil {
		return nil, err
	}
	if item.DownloadURL == "" {
		return nil, &Error{Code: ErrUnknown, Message: "item has no download URL"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.DownloadURL, nil)
	if err != nil {
		return nil, &Error{Code: ErrUnknown, Message: err.Error()}
	}
	resp, err := p.client.http.Do(req)
	if err != nil {
		return nil, &Error{Code: ErrNetwork, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, mapStatusError(resp.StatusCode)
	}
	return resp.Body, nil
}

func (p *OneDriveProvider) UploadFile(ctx context.Context, in UploadInput, folderID string) (*CloudFile, error) {
	if in.Size > oneDriveSimpleUploadLimit {
		return nil, &Error{
			Code:    ErrUnknown,
			Message: fmt.Sprintf("file %q is %d bytes; simple upload is limited to %d bytes", in.Name, in.Size, oneDriveSimpleUploadLimit),
		}
	}

	parent := "root"
	if folderID != "" {
		parent = url.PathEscape(folderID)
	}
	uploadURL := fmt.Sprintf("%s/me/drive/items/%s:/%s:/content", p.baseURL, parent, url.PathEscape(in.Name))

	contentType := in.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	resp, err := p.client.do(ctx, http.MethodPut, uploadURL, in.Content, contentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var item graphItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, &Error{Code: ErrUnknown, Message: fmt.Sprintf("decoding upload response: %v", err)}
	}
	cf := item.toCloudFile()
	return &cf, nil
}

func (p *OneDriveProvider) CreateFolder(ctx context.Context, name, parentID string) (*CloudFile, error) {
	parent := "root"
	if parentID != "" {
		parent = "items/" + url.PathEscape(parentID)
	}

	payload := map[string]interface{}{
		"name":                              name,
		"folder":                            map[string]interface{}{},
		"@microsoft.graph.conflictBehavior": "rename",
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Code: ErrUnknown, Message: err.Error()}
	}

	resp, err := p.client.do(ctx, http.MethodPost, fmt.Sprintf("%s/me/drive/%s/children", p.baseURL, parent), bytes.NewReader(payloadJSON), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var item graphItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, &Error{Code: ErrUnknown, Message: fmt.Sprintf("decoding create folder response: %v", err)}
	}
	cf := item.toCloudFile()
	return &cf, nil
}

func (p *OneDriveProvider) DeleteFile(ctx context.Context, fileID string) error {
	resp, err := p.client.do(ctx, http.MethodDelete, fmt.Sprintf("%s/me/drive/items/%s", p.baseURL, url.PathEscape(fileID)), nil, "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (p *OneDriveProvider) MoveFile(ctx context.Context, fileID, newParentID string) (*CloudFile, error) {
	payload := map[string]interface{}{
		"parentReference": map[string]string{"id": newParentID},
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Code: ErrUnknown, Message: err.Error()}
	}

	resp, err := p.client.do(ctx, http.MethodPatch, fmt.Sprintf("%s/me/drive/items/%s", p.baseURL, url.PathEscape(fileID)), bytes.NewReader(payloadJSON), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var item graphItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, &Error{Code: ErrUnknown, Message: fmt.Sprintf("decoding move response: %v", err)}
	}
	cf := item.toCloudFile()
	return &cf, nil
}

func (p *OneDriveProvider) SearchFiles(ctx context.Context, query string) ([]CloudFile, error) {
	escaped := strings.ReplaceAll(query, "'", "''")
	searchURL := fmt.Sprintf("%s/me/drive/root/search(q='%s')", p.baseURL, url.PathEscape(escaped))

	var result []CloudFile
	next := searchURL
	for next != "" {
		var page graphItemList
		if err := p.getJSON(ctx, next, &page); err != nil {
			return nil, err
		}
		for i := range page.Value {
			result = append(result, page.Value[i].toCloudFile())
		}
		next = page.NextLink
	}
	return result, nil
}

func (p *OneDriveProvider) getItem(ctx context.Context, itemURL string) (*graphItem, error) {
	var item graphItem
	if err := p.getJSON(ctx, itemURL, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (p *OneDriveProvider) getJSON(ctx context.Context, requestURL string, out interface{}) error {
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
