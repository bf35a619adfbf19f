package models

import (
	"path/filepath"
	"strings"
)

// FileType describes a kind of file the server accepts.
type FileType struct {
	Name       string
	Extension  string
	MimeType   string
	IsText     bool
	IsSource   bool
	IsImage    bool
	Executable bool
}

var fileTypes = []FileType{
	{Name: "R", Extension: "r", MimeType: "text/plain", IsText: true, IsSource: true, Executable: true},
	{Name: "RMarkdown", Extension: "rmd", MimeType: "text/plain", IsText: true, IsSource: true, Executable: true},
	{Name: "Sweave", Extension: "rnw", MimeType: "text/plain", IsText: true, IsSource: true, Executable: true},
	{Name: "Python", Extension: "py", MimeType: "text/plain", IsText: true, IsSource: true},
	{Name: "SAS", Extension: "sas", MimeType: "text/plain", IsText: true, IsSource: true},
	{Name: "Text", Extension: "txt", MimeType: "text/plain", IsText: true},
	{Name: "Markdown", Extension: "md", MimeType: "text/markdown", IsText: true},
	{Name: "CSV", Extension: "csv", MimeType: "text/csv", IsText: true},
	{Name: "TSV", Extension: "tsv", MimeType: "text/tab-separated-values", IsText: true},
	{Name: "JSON", Extension: "json", MimeType: "application/json", IsText: true},
	{Name: "HTML", Extension: "html", MimeType: "text/html", IsText: true},
	{Name: "PDF", Extension: "pdf", MimeType: "application/pdf"},
	{Name: "PNG", Extension: "png", MimeType: "image/png", IsImage: true},
	{Name: "JPEG", Extension: "jpg", MimeType: "image/jpeg", IsImage: true},
	{Name: "SVG", Extension: "svg", MimeType: "image/svg+xml", IsText: true, IsImage: true},
	{Name: "RData", Extension: "rdata", MimeType: "application/octet-stream"},
	{Name: "RDS", Extension: "rds", MimeType: "application/octet-stream"},
}

var extensionAliases = map[string]string{
	"jpeg": "jpg",
	"htm":  "html",
	"rda":  "rdata",
}

// FileTypeForExtension looks up a file type by extension, case-insensitively.
func FileTypeForExtension(ext string) (FileType, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if alias, ok := extensionAliases[ext]; ok {
		ext = alias
	}
	for _, ft := range fileTypes {
		if ft.Extension == ext {
			return ft, true
		}
	}
	return FileType{}, false
}

// FileTypeForName looks up a file type from the extension of a file name.
func FileTypeForName(name string) (FileType, bool) {
	ext := filepath.Ext(name)
	if ext == "" {
		return FileType{}, false
	}
	return FileTypeForExtension(ext)
}

// FileTypes returns all known file types.
func FileTypes() []FileType {
	out := make([]FileType, len(fileTypes))
	copy(out, fileTypes)
	return out
}
