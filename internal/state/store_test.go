package state

import (
	"path/filepath"
	"testing"

	"github.com/mlilback/rc2SwiftClient-sub000/pkg/models"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, path
}

func TestLoadMissingReturnsDefault(t *testing.T) {
	s, _ := openStore(t)
	defer s.Close()

	st, err := s.Load(5)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.NextBatchID != 1 || st.EditorState.LastSelectedFileID != -1 {
		t.Errorf("default state = %+v", st)
	}
}

func TestSaveLoadAcrossReopen(t *testing.T) {
	s, path := openStore(t)

	st := models.NewSessionState()
	st.AddCommand("x <- 1")
	st.NextBatchID = 7
	st.ImageCacheState = models.ImageCacheState{
		HostIdentifier: "localhost_8088",
		Images:         []models.SessionImage{{ID: 3, BatchID: 6, Name: "p.png", Data: []byte{1, 2}}},
	}
	if err := s.Save(5, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Load(5)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.NextBatchID != 7 || len(got.OutputState.CommandHistory) != 1 {
		t.Errorf("state = %+v", got)
	}
	if len(got.ImageCacheState.Images) != 1 || got.ImageCacheState.Images[0].Data != nil {
		t.Errorf("images = %+v; bytes must not be persisted", got.ImageCacheState.Images)
	}

	ids, err := s.Workspaces()
	if err != nil || len(ids) != 1 || ids[0] != 5 {
		t.Errorf("Workspaces = %v, %v", ids, err)
	}

	if err := s.Delete(5); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Load(5); got.NextBatchID != 1 {
		t.Error("Delete did not remove state")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Error("expected error for empty path")
	}
}
