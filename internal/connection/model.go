package connection

import (
	"fmt"
	"sync"

	"github.com/mlilback/rc2SwiftClient-sub000/internal/events"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/logging"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/metrics"
	"github.com/mlilback/rc2SwiftClient-sub000/internal/reconcile"
	"github.com/mlilback/rc2SwiftClient-sub000/pkg/models"
)

// FileChangeType is the kind of change applied to a file.
type FileChangeType int

const (
	FileAdded FileChangeType = iota
	FileModified
	FileRemoved
)

func (t FileChangeType) String() string {
	switch t {
	case FileAdded:
		return "add"
	case FileModified:
		return "modify"
	case FileRemoved:
		return "remove"
	}
	return fmt.Sprintf("FileChangeType(%d)", int(t))
}

// FileChange describes one file affected by a reconciliation pass.
type FileChange struct {
	Type FileChangeType
	File *models.File
}

// ChangeSet is published once per reconciliation pass. Items are snapshots;
// the model keeps the live objects.
type ChangeSet struct {
	Projects   reconcile.ChangeSet[*models.Project]
	Workspaces reconcile.ChangeSet[*models.Workspace]
	Files      []FileChange
}

// Empty reports whether the pass changed nothing.
func (c ChangeSet) Empty() bool {
	return c.Projects.Empty() && c.Workspaces.Empty() && len(c.Files) == 0
}

// Model is the canonical Project→Workspace→File graph. It is the only
// component that mutates those objects, always through the reconciler.
type Model struct {
	mu       sync.RWMutex
	user     models.User
	projects []*models.Project
	changes  *events.Broadcaster[ChangeSet]
}

// NewModel creates an empty model. buffer sizes each subscriber's channel.
func NewModel(buffer int) *Model {
	return &Model{changes: events.NewBroadcaster[ChangeSet](buffer)}
}

// Changes returns the broadcaster change-sets are published on.
func (m *Model) Changes() *events.Broadcaster[ChangeSet] {
	return m.changes
}

// User returns the logged-in user from the last bulk update.
func (m *Model) User() models.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user
}

// Update reconciles the whole graph against a bulk snapshot. The model takes
// ownership of objects inserted from bulk.
func (m *Model) Update(bulk *models.BulkInfo) ChangeSet {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.user = bulk.User

	var cs ChangeSet
	projects, pcs := reconcile.Reconcile(m.projects, bulk.Projects)
	m.projects = projects

	for _, p := range m.projects {
		workspaces, wcs := reconcile.Reconcile(p.Workspaces, bulk.Workspaces[p.ID])
		p.Workspaces = workspaces
		appendWorkspaceChanges(&cs.Workspaces, wcs)

		for _, w := range p.Workspaces {
			files, fcs := reconcile.Reconcile(w.Files, bulk.Files[w.ID])
			w.Files = files
			cs.Files = append(cs.Files, fileChanges(fcs)...)
		}
	}
	// Project snapshots carry their workspaces, so take them once those are merged.
	cs.Projects = snapshotProjects(pcs)

	m.publish("bulk", cs)
	return cs
}

// UpdateWorkspace applies a session info push for exactly one workspace,
// leaving its siblings untouched.
func (m *Model) UpdateWorkspace(ws *models.Workspace, files []*models.File) (ChangeSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cs ChangeSet
	cur := m.workspaceLocked(ws.ID)
	if cur == nil {
		return cs, fmt.Errorf("workspace %d: %w", ws.ID, reconcile.ErrNoSuchElement)
	}

	if cur.Version != ws.Version {
		cur.ApplyUpdate(ws)
		cs.Workspaces.Updated = append(cs.Workspaces.Updated, cur.Clone())
	}
	merged, fcs := reconcile.Reconcile(cur.Files, files)
	cur.Files = merged
	cs.Files = fileChanges(fcs)

	m.publish("workspace", cs)
	return cs, nil
}

// UpdateFile applies a single pushed file change. An update or delete of a
// file the model does not know is reported as reconcile.ErrNoSuchElement.
func (m *Model) UpdateFile(workspaceID int, change reconcile.ChangeType, file *models.File) (ChangeSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cs ChangeSet
	ws := m.workspaceLocked(workspaceID)
	if ws == nil {
		return cs, fmt.Errorf("workspace %d: %w", workspaceID, reconcile.ErrNoSuchElement)
	}

	files, fcs, err := reconcile.ApplyDelta(ws.Files, change, file)
	if err != nil {
		logging.Warn("file change rejected",
			logging.WorkspaceID(workspaceID),
			logging.FileID(file.ID),
			logging.String("change", change.String()),
			logging.Err(err),
		)
		return cs, err
	}
	ws.Files = files
	cs.Files = fileChanges(fcs)

	m.publish("file", cs)
	return cs, nil
}

// Projects returns snapshots of all projects.
func (m *Model) Projects() []*models.Project {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Project, len(m.projects))
	for i, p := range m.projects {
		out[i] = p.Clone()
	}
	return out
}

// Project returns a snapshot of a project, or nil.
func (m *Model) Project(id int) *models.Project {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.projects {
		if p.ID == id {
			return p.Clone()
		}
	}
	return nil
}

// Workspace returns a snapshot of a workspace and its files, or nil.
func (m *Model) Workspace(id int) *models.Workspace {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ws := m.workspaceLocked(id); ws != nil {
		return ws.Clone()
	}
	return nil
}

// Files returns snapshots of a workspace's files.
func (m *Model) Files(workspaceID int) []*models.File {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ws := m.workspaceLocked(workspaceID)
	if ws == nil {
		return nil
	}
	out := make([]*models.File, len(ws.Files))
	for i, f := range ws.Files {
		out[i] = f.Clone()
	}
	return out
}

// File returns a snapshot of one file, or nil.
func (m *Model) File(workspaceID, fileID int) *models.File {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ws := m.workspaceLocked(workspaceID)
	if ws == nil {
		return nil
	}
	if f := ws.File(fileID); f != nil {
		return f.Clone()
	}
	return nil
}

func (m *Model) workspaceLocked(id int) *models.Workspace {
	for _, p := range m.projects {
		if ws := p.Workspace(id); ws != nil {
			return ws
		}
	}
	return nil
}

// publish must be called with the write lock held so passes are delivered
// in the order they were applied.
func (m *Model) publish(kind string, cs ChangeSet) {
	metrics.RecordReconcile("project", len(cs.Projects.Inserted), len(cs.Projects.Updated), len(cs.Projects.Removed))
	metrics.RecordReconcile("workspace", len(cs.Workspaces.Inserted), len(cs.Workspaces.Updated), len(cs.Workspaces.Removed))
	var added, modified, removed int
	for _, fc := range cs.Files {
		switch fc.Type {
		case FileAdded:
			added++
		case FileModified:
			modified++
		case FileRemoved:
			removed++
		}
	}
	metrics.RecordReconcile("file", added, modified, removed)

	if cs.Empty() {
		return
	}
	logging.Debug("model updated",
		logging.String("pass", kind),
		logging.Int("projects", cs.Projects.Len()),
		logging.Int("workspaces", cs.Workspaces.Len()),
		logging.Int("files", len(cs.Files)),
	)
	m.changes.Publish(cs)
}

func snapshotProjects(cs reconcile.ChangeSet[*models.Project]) reconcile.ChangeSet[*models.Project] {
	var out reconcile.ChangeSet[*models.Project]
	for _, p := range cs.Inserted {
		out.Inserted = append(out.Inserted, p.Clone())
	}
	for _, p := range cs.Updated {
		out.Updated = append(out.Updated, p.Clone())
	}
	for _, p := range cs.Removed {
		out.Removed = append(out.Removed, p.Clone())
	}
	return out
}

func appendWorkspaceChanges(dst *reconcile.ChangeSet[*models.Workspace], cs reconcile.ChangeSet[*models.Workspace]) {
	for _, w := range cs.Inserted {
		dst.Inserted = append(dst.Inserted, w.Clone())
	}
	for _, w := range cs.Updated {
		dst.Updated = append(dst.Updated, w.Clone())
	}
	for _, w := range cs.Removed {
		dst.Removed = append(dst.Removed, w.Clone())
	}
}

func fileChanges(cs reconcile.ChangeSet[*models.File]) []FileChange {
	out := make([]FileChange, 0, cs.Len())
	for _, f := range cs.Inserted {
		out = append(out, FileChange{Type: FileAdded, File: f.Clone()})
	}
	for _, f := range cs.Updated {
		out = append(out, FileChange{Type: FileModified, File: f.Clone()})
	}
	for _, f := range cs.Removed {
		out = append(out, FileChange{Type: FileRemoved, File: f.Clone()})
	}
	return out
}
