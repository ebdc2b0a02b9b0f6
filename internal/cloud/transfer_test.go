package cloud

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
)

// fakeProvider serves files from a map and records uploads, standing in for
// both ends of a transfer.
type fakeProvider struct {
	providerType ProviderType
	files        map[string]*CloudFile
	content      map[string]string

	uploads     []UploadInput
	uploadsInto []string
	failUpload  map[string]error
}

func newFakeProvider(providerType ProviderType) *fakeProvider {
	return &fakeProvider{
		providerType: providerType,
		files:        map[string]*CloudFile{},
		content:      map[string]string{},
		failUpload:   map[string]error{},
	}
}

func (f *fakeProvider) addFile(id, name, body string) {
	f.files[id] = &CloudFile{ID: id, Name: name, MimeType: "text/plain", Size: int64(len(body)), Provider: f.providerType}
	f.content[id] = body
}

func (f *fakeProvider) addFolder(id, name string) {
	f.files[id] = &CloudFile{ID: id, Name: name, Provider: f.providerType, IsFolder: true}
}

func (f *fakeProvider) Type() ProviderType { return f.providerType }

func (f *fakeProvider) GetFiles(ctx context.Context, folderID string) ([]CloudFile, error) {
	return nil, nil
}

func (f *fakeProvider) GetFile(ctx context.Context, fileID string) (*CloudFile, error) {
	file, ok := f.files[fileID]
	if !ok {
		return nil, &Error{Code: ErrUnknown, Message: fmt.Sprintf("no such file %s", fileID)}
	}
	return file, nil
}

func (f *fakeProvider) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	body, ok := f.content[fileID]
	if !ok {
		return nil, &Error{Code: ErrUnknown, Message: fmt.Sprintf("no content for %s", fileID)}
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeProvider) UploadFile(ctx context.Context, in UploadInput, folderID string) (*CloudFile, error) {
	if err, ok := f.failUpload[in.Name]; ok {
		return nil, err
	}
	data, err := io.ReadAll(in.Content)
	if err != nil {
		return nil, err
	}
	in.Content = strings.NewReader(string(data))
	f.uploads = append(f.uploads, in)
	f.uploadsInto = append(f.uploadsInto, folderID)
	return &CloudFile{ID: fmt.Sprintf("up-%d", len(f.uploads)), Name: in.Name, Size: int64(len(data))}, nil
}

func (f *fakeProvider) CreateFolder(ctx context.Context, name, parentID string) (*CloudFile, error) {
	return nil, &Error{Code: ErrUnknown, Message: "not implemented"}
}

func (f *fakeProvider) DeleteFile(ctx context.Context, fileID string) error { return nil }

func (f *fakeProvider) MoveFile(ctx context.Context, fileID, newParentID string) (*CloudFile, error) {
	return nil, &Error{Code: ErrUnknown, Message: "not implemented"}
}

func (f *fakeProvider) SearchFiles(ctx context.Context, query string) ([]CloudFile, error) {
	return nil, nil
}

func TestTransferMovesAllFiles(t *testing.T) {
	source := newFakeProvider(ProviderGoogleDrive)
	source.addFile("f1", "a.txt", "alpha")
	source.addFile("f2", "b.txt", "bravo")
	target := newFakeProvider(ProviderOneDrive)

	manager := NewTransferManager(source, target)
	var snapshots []TransferProgress
	manager.OnProgress = func(p TransferProgress) { snapshots = append(snapshots, p) }

	if err := manager.Transfer(context.Background(), []string{"f1", "f2"}, "dest"); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	if len(target.uploads) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(target.uploads))
	}
	for _, into := range target.uploadsInto {
		if into != "dest" {
			t.Fatalf("upload targeted %q, want dest", into)
		}
	}

	final := manager.Progress()
	if final.Status != TransferCompleted || final.CompletedFiles != 2 || final.Percent != 100 {
		t.Fatalf("unexpected final progress: %+v", final)
	}

	// CompletedFiles never decreases across snapshots.
	last := 0
	for _, snap := range snapshots {
		if snap.CompletedFiles < last {
			t.Fatalf("CompletedFiles went backwards: %+v", snapshots)
		}
		last = snap.CompletedFiles
	}
	if last != 2 {
		t.Fatalf("final snapshot has CompletedFiles %d, want 2", last)
	}
}

func TestTransferAbortsOnFirstFailure(t *testing.T) {
	source := newFakeProvider(ProviderGoogleDrive)
	for i := 1; i <= 5; i++ {
		source.addFile(fmt.Sprintf("f%d", i), fmt.Sprintf("file%d.txt", i), "data")
	}
	target := newFakeProvider(ProviderOneDrive)
	target.failUpload["file2.txt"] = &Error{Code: ErrQuotaExceeded, Message: "provider storage quota exceeded"}

	manager := NewTransferManager(source, target)
	err := manager.Transfer(context.Background(), []string{"f1", "f2", "f3", "f4", "f5"}, "")
	if err == nil {
		t.Fatal("expected transfer to fail")
	}

	if len(target.uploads) != 1 {
		t.Fatalf("expected the run to stop after the failure, got %d uploads", len(target.uploads))
	}

	final := manager.Progress()
	if final.Status != TransferFailed {
		t.Fatalf("expected failed status, got %s", final.Status)
	}
	if final.CompletedFiles != 1 {
		t.Fatalf("expected 1 completed file before the failure, got %d", final.CompletedFiles)
	}
	if !strings.Contains(final.Error, "file2.txt") {
		t.Fatalf("expected error to name the failing file, got %q", final.Error)
	}
}

func TestTransferCountsFoldersWithoutDownloading(t *testing.T) {
	source := newFakeProvider(ProviderGoogleDrive)
	source.addFolder("d1", "Photos")
	source.addFile("f1", "a.txt", "alpha")
	target := newFakeProvider(ProviderOneDrive)

	manager := NewTransferManager(source, target)
	if err := manager.Transfer(context.Background(), []string{"d1", "f1"}, ""); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	if len(target.uploads) != 1 {
		t.Fatalf("folder should not be uploaded, got %d uploads", len(target.uploads))
	}

	final := manager.Progress()
	if final.CompletedFiles != 2 || final.Percent != 100 {
		t.Fatalf("folder should count toward progress: %+v", final)
	}
}

func TestTransferCancelledContext(t *testing.T) {
	source := newFakeProvider(ProviderGoogleDrive)
	source.addFile("f1", "a.txt", "alpha")
	target := newFakeProvider(ProviderOneDrive)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	manager := NewTransferManager(source, target)
	if err := manager.Transfer(ctx, []string{"f1"}, ""); err == nil {
		t.Fatal("expected cancelled transfer to fail")
	}
	if got := manager.Progress().Status; got != TransferFailed {
		t.Fatalf("expected failed status, got %s", got)
	}
	if len(target.uploads) != 0 {
		t.Fatal("cancelled transfer must not upload")
	}
}

func TestTransferEmptyBatchCompletesAtFullPercent(t *testing.T) {
	source := newFakeProvider(ProviderGoogleDrive)
	target := newFakeProvider(ProviderOneDrive)
	manager := NewTransferManager(source, target)

	if err := manager.Transfer(context.Background(), nil, "dest"); err != nil {
		t.Fatalf("empty transfer failed: %v", err)
	}

	final := manager.Progress()
	if final.Status != TransferCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if final.TotalFiles != 0 || final.CompletedFiles != 0 {
		t.Fatalf("unexpected counters: %d/%d", final.CompletedFiles, final.TotalFiles)
	}
	if final.Percent != 100 {
		t.Fatalf("a completed transfer must read 100%%, got %d", final.Percent)
	}
	if len(target.uploads) != 0 {
		t.Fatalf("expected no uploads, got %d", len(target.uploads))
	}
}
