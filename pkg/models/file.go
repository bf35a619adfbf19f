// Package models contains the Project/Workspace/File graph and related data types
// shared by the REST client, the wire protocol and the sync engine.
package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFileType is returned when a file name has no known file type.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// File is a single file in a workspace. Version increments on every content
// or metadata change.
type File struct {
	ID          int    `json:"id"`
	WorkspaceID int    `json:"wspaceId"`
	Name        string `json:"name"`
	Version     int    `json:"version"`
	SizeBytes   int64  `json:"fileSize"`
	CreatedAt   Millis `json:"dateCreated"`
	ModifiedAt  Millis `json:"lastModified"`
}

// VersionTag returns the cache validation token for the current version.
func (f *File) VersionTag() string {
	return VersionTag(f.ID, f.Version)
}

// VersionTag formats the cache validation token for a file id and version.
func VersionTag(fileID, version int) string {
	return fmt.Sprintf("f/%d/%d", fileID, version)
}

// Type returns the file type derived from the file name.
func (f *File) Type() (FileType, bool) {
	return FileTypeForName(f.Name)
}

// Extension returns the lowercase extension used for the cached copy.
func (f *File) Extension() string {
	if ft, ok := f.Type(); ok {
		return ft.Extension
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
}

// BaseName returns the name without its extension.
func (f *File) BaseName() string {
	idx := strings.LastIndex(f.Name, ".")
	if idx <= 0 {
		return f.Name
	}
	return f.Name[:idx]
}

// Validate checks the fields a server-supplied file must carry.
func (f *File) Validate() error {
	if f.ID <= 0 {
		return fmt.Errorf("file has invalid id %d", f.ID)
	}
	if _, ok := f.Type(); !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedFileType, f.Name)
	}
	return nil
}

// Clone returns a copy that shares no state with f.
func (f *File) Clone() *File {
	c := *f
	return &c
}

// ReconcileKey implements the reconciler contract.
func (f *File) ReconcileKey() int { return f.ID }

// ReconcileVersion implements the reconciler contract.
func (f *File) ReconcileVersion() int { return f.Version }

// ApplyUpdate copies the mutable fields of src into f, keeping f's identity.
func (f *File) ApplyUpdate(src *File) {
	f.Name = src.Name
	f.Version = src.Version
	f.SizeBytes = src.SizeBytes
	f.CreatedAt = src.CreatedAt
	f.ModifiedAt = src.ModifiedAt
}

func (f *File) String() string {
	return fmt.Sprintf("File(%d %q v%d)", f.ID, f.Name, f.Version)
}
