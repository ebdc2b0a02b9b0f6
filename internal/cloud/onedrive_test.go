package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOneDriveListChildren(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me/drive/items/folder1/children":
			if r.URL.Query().Get("page") == "2" {
				fmt.Fprint(w, `{"value":[{"id":"f2","name":"b.txt","size":20,"file":{"mimeType":"text/plain"}}]}`)
				return
			}
			fmt.Fprintf(w, `{
				"value":[
					{"id":"d1","name":"Docs","folder":{"childCount":3}},
					{"id":"f1","name":"a.txt","size":10,"file":{"mimeType":"text/plain"},"parentReference":{"id":"folder1"}}
				],
				"@odata.nextLink":%q
			}`, server.URL+"/me/drive/items/folder1/children?page=2")
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	p := oneDriveProviderFor(server)
	files, err := p.GetFiles(context.Background(), "folder1")
	if err != nil {
		t.Fatalf("GetFiles: %v", err)
	}

	if len(files) != 3 {
		t.Fatalf("expected 3 items across pages, got %d", len(files))
	}
	if !files[0].IsFolder {
		t.Fatalf("expected folder facet to mark %q as folder", files[0].Name)
	}
	if files[1].IsFolder || files[1].MimeType != "text/plain" {
		t.Fatalf("expected file facet MIME type, got %+v", files[1])
	}
	if len(files[1].ParentIDs) != 1 || files[1].ParentIDs[0] != "folder1" {
		t.Fatalf("expected single parent reference, got %v", files[1].ParentIDs)
	}
	if files[2].ID != "f2" {
		t.Fatalf("expected nextLink page last, got %q", files[2].ID)
	}
}

func TestOneDriveFullListingWalk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me/drive/root":
			fmt.Fprint(w, `{"id":"rootid","name":"root","folder":{"childCount":2}}`)
		case "/me/drive/items/rootid/children":
			fmt.Fprint(w, `{"value":[
				{"id":"d1","name":"Photos","folder":{"childCount":1}},
				{"id":"f1","name":"notes.txt","size":5,"file":{"mimeType":"text/plain"}}
			]}`)
		case "/me/drive/items/d1/children":
			fmt.Fprint(w, `{"value":[{"id":"f2","name":"cat.jpg","size":2048,"file":{"mimeType":"image/jpeg"}}]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	p := oneDriveProviderFor(server)
	files, err := p.GetFiles(context.Background(), "")
	if err != nil {
		t.Fatalf("GetFiles: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 items from full walk, got %d", len(files))
	}
}

// The download URL Graph hands out is pre-authenticated; the second request
// must not carry the bearer token.
func TestOneDriveDownloadFile(t *testing.T) {
	var downloadAuth *string
	content := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		downloadAuth = &auth
		fmt.Fprint(w, "cat picture bytes")
	}))
	defer content.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":                            "f1",
			"name":                          "cat.jpg",
			"size":                          17,
			"file":                          map[string]string{"mimeType": "image/jpeg"},
			"@microsoft.graph.downloadUrl":  content.URL + "/tmp/signed",
		})
	}))
	defer server.Close()

	p := oneDriveProviderFor(server)
	body, err := p.DownloadFile(context.Background(), "f1")
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	defer body.Close()

	data, _ := io.ReadAll(body)
	if string(data) != "cat picture bytes" {
		t.Fatalf("unexpected content %q", data)
	}
	if downloadAuth == nil {
		t.Fatal("download URL was never fetched")
	}
	if *downloadAuth != "" {
		t.Fatalf("download request carried Authorization %q, want none", *downloadAuth)
	}
}

func TestOneDriveDownloadFileWithoutURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"f1","name":"cat.jpg"}`)
	}))
	defer server.Close()

	p := oneDriveProviderFor(server)
	_, err := p.DownloadFile(context.Background(), "f1")
	assertCloudError(t, err, ErrUnknown)
}

func TestOneDriveUploadFile(t *testing.T) {
	t.Run("simple upload", func(t *testing.T) {
		var gotPath, gotBody string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut {
				t.Errorf("expected PUT, got %s", r.Method)
			}
			gotPath = r.URL.Path
			body, _ := io.ReadAll(r.Body)
			gotBody = string(body)
			fmt.Fprint(w, `{"id":"new","name":"report.pdf","size":9,"file":{"mimeType":"application/pdf"}}`)
		}))
		defer server.Close()

		p := oneDriveProviderFor(server)
		uploaded, err := p.UploadFile(context.Background(), UploadInput{
			Name:     "report.pdf",
			MimeType: "application/pdf",
			Size:     9,
			Content:  strings.NewReader("pdf bytes"),
		}, "target")
		if err != nil {
			t.Fatalf("UploadFile: %v", err)
		}

		if gotPath != "/me/drive/items/target:/report.pdf:/content" {
			t.Fatalf("unexpected upload path %q", gotPath)
		}
		if gotBody != "pdf bytes" {
			t.Fatalf("unexpected body %q", gotBody)
		}
		if uploaded.ID != "new" {
			t.Fatalf("unexpected result %+v", uploaded)
		}
	})

	t.Run("rejects files over the simple upload limit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request should be made for an oversized upload")
		}))
		defer server.Close()

		p := oneDriveProviderFor(server)
		_, err := p.UploadFile(context.Background(), UploadInput{
			Name:    "big.iso",
			Size:    oneDriveSimpleUploadLimit + 1,
			Content: strings.NewReader(""),
		}, "")
		assertCloudError(t, err, ErrUnknown)
	})

	t.Run("empty folder targets the drive root", func(t *testing.T) {
		var gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			fmt.Fprint(w, `{"id":"new","name":"a.txt","size":1}`)
		}))
		defer server.Close()

		p := oneDriveProviderFor(server)
		if _, err := p.UploadFile(context.Background(), UploadInput{Name: "a.txt", Size: 1, Content: strings.NewReader("x")}, ""); err != nil {
			t.Fatalf("UploadFile: %v", err)
		}
		if gotPath != "/me/drive/items/root:/a.txt:/content" {
			t.Fatalf("unexpected upload path %q", gotPath)
		}
	})
}

func TestOneDriveMoveFile(t *testing.T) {
	var gotPayload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&gotPayload)
		fmt.Fprint(w, `{"id":"f1","name":"a.txt","parentReference":{"id":"new"}}`)
	}))
	defer server.Close()

	p := oneDriveProviderFor(server)
	moved, err := p.MoveFile(context.Background(), "f1", "new")
	if err != nil {
		t.Fatalf("MoveFile: %v", err)
	}

	parent, _ := gotPayload["parentReference"].(map[string]interface{})
	if parent == nil || parent["id"] != "new" {
		t.Fatalf("expected parentReference patch, got %v", gotPayload)
	}
	if len(moved.ParentIDs) != 1 || moved.ParentIDs[0] != "new" {
		t.Fatalf("unexpected parents after move: %v", moved.ParentIDs)
	}
}

func TestOneDriveSearchFiles(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"value":[{"id":"f1","name":"o'brien notes","size":5,"file":{"mimeType":"text/plain"}}]}`)
	}))
	defer server.Close()

	p := oneDriveProviderFor(server)
	files, err := p.SearchFiles(context.Background(), "o'brien")
	if err != nil {
		t.Fatalf("SearchFiles: %v", err)
	}

	if !strings.Contains(gotPath, "o''brien") {
		t.Fatalf("single quote not doubled in search path %q", gotPath)
	}
	if len(files) != 1 || files[0].Name != "o'brien notes" {
		t.Fatalf("unexpected results: %+v", files)
	}
}
