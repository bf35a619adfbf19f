package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestVersionTag(t *testing.T) {
	f := &File{ID: 12, Version: 3, Name: "a.R"}
	if got := f.VersionTag(); got != "f/12/3" {
		t.Errorf("VersionTag = %q, want f/12/3", got)
	}
}

func TestFileTypeForName(t *testing.T) {
	tests := []struct {
		name    string
		wantExt string
		wantOK  bool
	}{
		{"script.R", "r", true},
		{"report.Rmd", "rmd", true},
		{"photo.JPEG", "jpg", true},
		{"data.csv", "csv", true},
		{"noext", "", false},
		{"archive.zip", "", false},
	}
	for _, tt := range tests {
		ft, ok := FileTypeForName(tt.name)
		if ok != tt.wantOK {
			t.Errorf("%s: ok = %v, want %v", tt.name, ok, tt.wantOK)
			continue
		}
		if ok && ft.Extension != tt.wantExt {
			t.Errorf("%s: ext = %q, want %q", tt.name, ft.Extension, tt.wantExt)
		}
	}
}

func TestFileValidate(t *testing.T) {
	good := &File{ID: 1, Name: "x.R"}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	bad := &File{ID: 2, Name: "x.exe"}
	if err := bad.Validate(); !errors.Is(err, ErrUnsupportedFileType) {
		t.Errorf("expected ErrUnsupportedFileType, got %v", err)
	}
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"a.R":       "a",
		"b.tar.csv": "b.tar",
		".hidden":   ".hidden",
		"plain":     "plain",
	}
	for in, want := range tests {
		f := &File{Name: in}
		if got := f.BaseName(); got != want {
			t.Errorf("BaseName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBulkInfoDecode(t *testing.T) {
	raw := `{
		"user": {"id": 7, "login": "mark"},
		"projects": [{"id": 1, "userId": 7, "name": "p", "version": 2}],
		"workspaces": {"1": [{"id": 10, "projectId": 1, "uniqueId": "abc", "name": "w", "version": 4}]},
		"files": {"10": [{"id": 100, "wspaceId": 10, "name": "a.R", "version": 1, "fileSize": 42,
			"dateCreated": 1500000000000, "lastModified": 1500000001000}]}
	}`
	var bulk BulkInfo
	if err := json.Unmarshal([]byte(raw), &bulk); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if err := bulk.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if bulk.User.Login != "mark" {
		t.Errorf("user login = %q", bulk.User.Login)
	}
	ws := bulk.Workspaces[1]
	if len(ws) != 1 || ws[0].UniqueID != "abc" {
		t.Fatalf("unexpected workspaces %+v", ws)
	}
	files := bulk.Files[10]
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	f := files[0]
	if f.SizeBytes != 42 {
		t.Errorf("size = %d", f.SizeBytes)
	}
	want := time.UnixMilli(1500000001000).UTC()
	if !f.ModifiedAt.Equal(want) {
		t.Errorf("modified = %v, want %v", f.ModifiedAt.Time, want)
	}
}

func TestWorkspaceEqual(t *testing.T) {
	a := &Workspace{ID: 1, Version: 1}
	b := &Workspace{ID: 1, Version: 1, Name: "renamed"}
	c := &Workspace{ID: 1, Version: 2}
	if !a.Equal(b) {
		t.Error("same id and version should be equal")
	}
	if a.Equal(c) {
		t.Error("different version should not be equal")
	}
}

func TestSessionStateDefaults(t *testing.T) {
	s := NewSessionState()
	if s.EditorState.LastSelectedFileID != -1 {
		t.Errorf("LastSelectedFileID = %d, want -1", s.EditorState.LastSelectedFileID)
	}
	s.ImageCacheState.Images = []SessionImage{{ID: 1, BatchID: 1, Data: []byte{1, 2}}}
	s.AddCommand("x <- 1")
	s.AddCommand("x <- 1")

	data, err := s.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if s.ImageCacheState.Images[0].Data == nil {
		t.Error("Marshal must not strip data from the caller's images")
	}
	restored, err := UnmarshalSessionState(data)
	if err != nil {
		t.Fatalf("UnmarshalSessionState: %v", err)
	}
	if len(restored.OutputState.CommandHistory) != 1 {
		t.Errorf("history = %v", restored.OutputState.CommandHistory)
	}
	if restored.ImageCacheState.Images[0].Data != nil {
		t.Error("persisted images must not carry bytes")
	}
}
