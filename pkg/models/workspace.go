package models

import "fmt"

// Workspace is a server-side container of files. UniqueID names its
// on-disk cache directory.
type Workspace struct {
	ID        int     `json:"id"`
	ProjectID int     `json:"projectId"`
	UniqueID  string  `json:"uniqueId"`
	Name      string  `json:"name"`
	Version   int     `json:"version"`
	Files     []*File `json:"-"`
}

// Equal reports whether both workspaces have the same id and version.
// Any server mutation bumps the version, so a stale copy is never equal.
func (w *Workspace) Equal(o *Workspace) bool {
	if w == nil || o == nil {
		return w == o
	}
	return w.ID == o.ID && w.Version == o.Version
}

// File returns the file with the given id, or nil.
func (w *Workspace) File(id int) *File {
	for _, f := range w.Files {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// FileNamed returns the file with the given name, or nil.
func (w *Workspace) FileNamed(name string) *File {
	for _, f := range w.Files {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// TotalSize returns the sum of all file sizes.
func (w *Workspace) TotalSize() int64 {
	var total int64
	for _, f := range w.Files {
		total += f.SizeBytes
	}
	return total
}

func (w *Workspace) ReconcileKey() int     { return w.ID }
func (w *Workspace) ReconcileVersion() int { return w.Version }

// ApplyUpdate copies metadata from src. Files are reconciled separately.
func (w *Workspace) ApplyUpdate(src *Workspace) {
	w.Name = src.Name
	w.Version = src.Version
	if src.UniqueID != "" {
		w.UniqueID = src.UniqueID
	}
}

func (w *Workspace) String() string {
	return fmt.Sprintf("Workspace(%d %q v%d)", w.ID, w.Name, w.Version)
}

// Project owns one or more workspaces.
type Project struct {
	ID         int          `json:"id"`
	UserID     int          `json:"userId"`
	Name       string       `json:"name"`
	Version    int          `json:"version"`
	Workspaces []*Workspace `json:"-"`
}

// Workspace returns the workspace with the given id, or nil.
func (p *Project) Workspace(id int) *Workspace {
	for _, w := range p.Workspaces {
		if w.ID == id {
			return w
		}
	}
	return nil
}

func (p *Project) ReconcileKey() int     { return p.ID }
func (p *Project) ReconcileVersion() int { return p.Version }

// ApplyUpdate copies metadata from src. Workspaces are reconciled separately.
func (p *Project) ApplyUpdate(src *Project) {
	p.UserID = src.UserID
	p.Name = src.Name
	p.Version = src.Version
}

func (p *Project) String() string {
	return fmt.Sprintf("Project(%d %q v%d)", p.ID, p.Name, p.Version)
}

// User is the account the session is authenticated as.
type User struct {
	ID        int    `json:"id"`
	Login     string `json:"login"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Admin     bool   `json:"admin,omitempty"`
}

// BulkInfo is the full server snapshot used to seed or refresh the
// connection model. Workspaces are keyed by project id, files by workspace id.
type BulkInfo struct {
	User       User                 `json:"user"`
	Projects   []*Project           `json:"projects"`
	Workspaces map[int][]*Workspace `json:"workspaces"`
	Files      map[int][]*File      `json:"files"`
}

// Validate checks every file in the snapshot.
func (b *BulkInfo) Validate() error {
	for _, files := range b.Files {
		for _, f := range files {
			if err := f.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clone returns a deep copy, including the files.
func (w *Workspace) Clone() *Workspace {
	c := *w
	c.Files = make([]*File, len(w.Files))
	for i, f := range w.Files {
		c.Files[i] = f.Clone()
	}
	return &c
}

// Clone returns a deep copy, including workspaces and their files.
func (p *Project) Clone() *Project {
	c := *p
	c.Workspaces = make([]*Workspace, len(p.Workspaces))
	for i, w := range p.Workspaces {
		c.Workspaces[i] = w.Clone()
	}
	return &c
}
