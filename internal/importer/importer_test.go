package importer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mlilback/rc2SwiftClient-sub000/pkg/models"
)

type fakeUploader struct {
	mu      sync.Mutex
	nextID  int
	names   []string
	fail    map[string]bool
	uploads map[string][]byte
}

func (u *fakeUploader) UploadFile(ctx context.Context, workspaceID int, name string, r io.Reader, size int64, onProgress func(int64)) (*models.File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if onProgress != nil {
		onProgress(int64(len(data)) / 2)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.names = append(u.names, name)
	if u.fail[name] {
		return nil, errors.New("server said no")
	}
	if u.uploads == nil {
		u.uploads = make(map[string][]byte)
	}
	u.uploads[name] = data
	u.nextID++
	return &models.File{ID: u.nextID, WorkspaceID: workspaceID, Name: name, Version: 1, SizeBytes: int64(len(data))}, nil
}

type fakeStore struct {
	mu     sync.Mutex
	stored map[int]string
}

func (s *fakeStore) StoreFrom(file *models.File, srcPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stored == nil {
		s.stored = make(map[int]string)
	}
	s.stored[file.ID] = srcPath
	return nil
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitImport(t *testing.T, imp *Import) ([]*models.File, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return imp.Wait(ctx)
}

func TestImportUploadsAndCaches(t *testing.T) {
	a := writeTemp(t, "a.R", "x <- 1\n")
	b := writeTemp(t, "b.Rmd", "# title\n")
	uploader := &fakeUploader{}
	store := &fakeStore{}
	im := New(Config{WorkspaceID: 3, Uploader: uploader, Cache: store})

	imp, err := im.Start(context.Background(), []FileToImport{
		{Path: a},
		{Path: b, UniqueName: "b 2.Rmd"},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	files, err := waitImport(t, imp)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if files[0].Name != "a.R" || files[1].Name != "b 2.Rmd" {
		t.Errorf("names = %q, %q", files[0].Name, files[1].Name)
	}
	if files[0].WorkspaceID != 3 {
		t.Errorf("workspace = %d, want 3", files[0].WorkspaceID)
	}
	if string(uploader.uploads["a.R"]) != "x <- 1\n" {
		t.Errorf("uploaded body = %q", uploader.uploads["a.R"])
	}
	if store.stored[files[1].ID] != b {
		t.Errorf("cache not seeded from %s: %v", b, store.stored)
	}
	if f := imp.Progress().Fraction(); f != 1 {
		t.Errorf("fraction = %v, want 1", f)
	}
}

func TestImportFailureDoesNotStopSiblings(t *testing.T) {
	a := writeTemp(t, "good.R", "1")
	b := writeTemp(t, "bad.R", "2")
	uploader := &fakeUploader{fail: map[string]bool{"bad.R": true}}
	im := New(Config{WorkspaceID: 1, Uploader: uploader, Concurrency: 1})

	imp, err := im.Start(context.Background(), []FileToImport{{Path: b}, {Path: a}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	files, err := waitImport(t, imp)
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("err = %v, want ErrUploadFailed", err)
	}
	if len(uploader.names) != 2 {
		t.Errorf("uploads attempted = %v, want both", uploader.names)
	}
	if len(files) != 1 || files[0].Name != "good.R" {
		t.Errorf("files = %v", files)
	}
}

func TestImportEmptyFilesCompleteFully(t *testing.T) {
	a := writeTemp(t, "empty.R", "")
	im := New(Config{WorkspaceID: 1, Uploader: &fakeUploader{}})
	imp, err := im.Start(context.Background(), []FileToImport{{Path: a}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := waitImport(t, imp); err != nil {
		t.Fatalf("import: %v", err)
	}
	if f := imp.Progress().Fraction(); f != 1 {
		t.Errorf("fraction = %v, want 1", f)
	}
}

func TestStartRejectsMissingFile(t *testing.T) {
	uploader := &fakeUploader{}
	im := New(Config{WorkspaceID: 1, Uploader: uploader})
	_, err := im.Start(context.Background(), []FileToImport{{Path: filepath.Join(t.TempDir(), "nope.R")}})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Start = %v, want not-exist", err)
	}
	if len(uploader.names) != 0 {
		t.Error("nothing should be uploaded")
	}
	if _, err := im.Start(context.Background(), nil); !errors.Is(err, ErrNoFiles) {
		t.Errorf("Start(nil) = %v, want ErrNoFiles", err)
	}
}

func TestFileToImportName(t *testing.T) {
	if n := (FileToImport{Path: "/tmp/x/data.csv"}).Name(); n != "data.csv" {
		t.Errorf("Name = %q", n)
	}
	if n := (FileToImport{Path: "/tmp/x/data.csv", UniqueName: "data 1.csv"}).Name(); n != "data 1.csv" {
		t.Errorf("Name = %q", n)
	}
}
