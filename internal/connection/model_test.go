package connection

import (
	"errors"
	"testing"
	"time"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/reconcile"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/models"
)

func file(id, wsID, version int, name string) *models.File {
	return &models.File{ID: id, WorkspaceID: wsID, Version: version, Name: name, SizeBytes: int64(id * 10)}
}

func testBulk(fileVersion int) *models.BulkInfo {
	return &models.BulkInfo{
		User:     models.User{ID: 1, Login: "test"},
		Projects: []*models.Project{{ID: 1, UserID: 1, Name: "proj", Version: 1}},
		Workspaces: map[int][]*models.Workspace{
			1: {
				{ID: 10, ProjectID: 1, UniqueID: "u10", Name: "one", Version: 1},
				{ID: 11, ProjectID: 1, UniqueID: "u11", Name: "two", Version: 1},
			},
		},
		Files: map[int][]*models.File{
			10: {file(100, 10, fileVersion, "a.R"), file(101, 10, 1, "b.csv")},
			11: {file(110, 11, 1, "c.R")},
		},
	}
}

func TestModelBulkUpdateKeepsIdentity(t *testing.T) {
	m := NewModel(8)
	m.Update(testBulk(1))

	liveFile := m.workspaceLocked(10).File(100)
	liveWS := m.workspaceLocked(10)
	if liveFile == nil || liveWS == nil {
		t.Fatal("expected workspace 10 and file 100")
	}

	cs := m.Update(testBulk(2))

	if m.workspaceLocked(10) != liveWS {
		t.Error("workspace was replaced instead of reconciled")
	}
	if m.workspaceLocked(10).File(100) != liveFile {
		t.Error("file was replaced instead of mutated")
	}
	if liveFile.Version != 2 {
		t.Errorf("file version = %d, want 2", liveFile.Version)
	}
	if len(cs.Files) != 1 || cs.Files[0].Type != FileModified || cs.Files[0].File.ID != 100 {
		t.Errorf("unexpected file changes %+v", cs.Files)
	}
	if !cs.Projects.Empty() || !cs.Workspaces.Empty() {
		t.Errorf("unexpected project/workspace changes %+v", cs)
	}
}

func TestModelBulkRemovesMissing(t *testing.T) {
	m := NewModel(8)
	m.Update(testBulk(1))

	bulk := testBulk(1)
	bulk.Files[10] = bulk.Files[10][:1]
	cs := m.Update(bulk)

	if len(cs.Files) != 1 || cs.Files[0].Type != FileRemoved || cs.Files[0].File.ID != 101 {
		t.Fatalf("unexpected changes %+v", cs.Files)
	}
	if m.File(10, 101) != nil {
		t.Error("file 101 should be gone")
	}
}

func TestModelUpdateWorkspaceLeavesSiblings(t *testing.T) {
	m := NewModel(8)
	m.Update(testBulk(1))
	sibling := m.workspaceLocked(11)
	siblingFiles := sibling.Files

	cs, err := m.UpdateWorkspace(
		&models.Workspace{ID: 10, ProjectID: 1, Name: "one", Version: 2},
		[]*models.File{file(100, 10, 1, "a.R"), file(102, 10, 1, "new.R")},
	)
	if err != nil {
		t.Fatalf("UpdateWorkspace: %v", err)
	}
	if len(cs.Workspaces.Updated) != 1 {
		t.Errorf("expected workspace update, got %+v", cs.Workspaces)
	}
	var added, removed int
	for _, fc := range cs.Files {
		switch fc.Type {
		case FileAdded:
			added++
		case FileRemoved:
			removed++
		}
	}
	if added != 1 || removed != 1 {
		t.Errorf("added=%d removed=%d, want 1 and 1", added, removed)
	}
	if m.workspaceLocked(11) != sibling || len(sibling.Files) != len(siblingFiles) {
		t.Error("sibling workspace was touched")
	}

	if _, err := m.UpdateWorkspace(&models.Workspace{ID: 99}, nil); !errors.Is(err, reconcile.ErrNoSuchElement) {
		t.Errorf("expected ErrNoSuchElement, got %v", err)
	}
}

func TestModelUpdateFile(t *testing.T) {
	m := NewModel(8)
	m.Update(testBulk(1))

	tests := []struct {
		name    string
		change  reconcile.ChangeType
		file    *models.File
		want    FileChangeType
		wantErr error
	}{
		{"insert", reconcile.Insert, file(103, 10, 1, "d.R"), FileAdded, nil},
		{"update", reconcile.Update, file(100, 10, 5, "a.R"), FileModified, nil},
		{"delete", reconcile.Delete, file(101, 10, 1, "b.csv"), FileRemoved, nil},
		{"update missing", reconcile.Update, file(999, 10, 1, "x.R"), 0, reconcile.ErrNoSuchElement},
		{"delete missing", reconcile.Delete, file(998, 10, 1, "x.R"), 0, reconcile.ErrNoSuchElement},
	}
	for _, tt := range tests {
		cs, err := m.UpdateFile(10, tt.change, tt.file)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("%s: expected %v, got %v", tt.name, tt.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
			continue
		}
		if len(cs.Files) != 1 || cs.Files[0].Type != tt.want {
			t.Errorf("%s: changes %+v", tt.name, cs.Files)
		}
	}

	if f := m.File(10, 100); f == nil || f.Version != 5 {
		t.Errorf("file 100 = %+v, want version 5", f)
	}
}

func TestModelPublishesInOrder(t *testing.T) {
	m := NewModel(8)
	sub := m.Changes().Subscribe()
	defer m.Changes().Unsubscribe(sub)

	m.Update(testBulk(1))
	if _, err := m.UpdateFile(10, reconcile.Update, file(100, 10, 2, "a.R")); err != nil {
		t.Fatalf("UpdateFile: %v", err)
	}

	first := recv(t, sub)
	if len(first.Projects.Inserted) != 1 || len(first.Files) != 3 {
		t.Errorf("first change-set = %+v", first)
	}
	second := recv(t, sub)
	if len(second.Files) != 1 || second.Files[0].File.Version != 2 {
		t.Errorf("second change-set = %+v", second)
	}
}

func TestModelSnapshotsAreDetached(t *testing.T) {
	m := NewModel(8)
	m.Update(testBulk(1))
	snap := m.File(10, 100)
	snap.Version = 42
	if m.File(10, 100).Version == 42 {
		t.Error("mutating a snapshot changed the model")
	}
}

func recv(t *testing.T, ch <-chan ChangeSet) ChangeSet {
	t.Helper()
	select {
	case cs := <-ch:
		return cs
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change-set")
	}
	return ChangeSet{}
}

func TestModelInsertedProjectCarriesWorkspaces(t *testing.T) {
	m := NewModel(8)
	cs := m.Update(testBulk(1))

	if len(cs.Projects.Inserted) != 1 {
		t.Fatalf("inserted projects = %d, want 1", len(cs.Projects.Inserted))
	}
	p := cs.Projects.Inserted[0]
	if len(p.Workspaces) != 2 {
		t.Fatalf("snapshot workspaces = %d, want 2", len(p.Workspaces))
	}
	for _, w := range p.Workspaces {
		if w.ID == 10 && len(w.Files) != 2 {
			t.Errorf("workspace 10 snapshot files = %d, want 2", len(w.Files))
		}
	}
	if p.Workspaces[0] == m.workspaceLocked(p.Workspaces[0].ID) {
		t.Error("snapshot shares workspace with the live model")
	}
}
