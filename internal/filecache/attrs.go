package filecache

import (
	"encoding/json"
	"errors"
	"os"
)

const (
	attrVersion = "user.io.rc2.FileAttr.Version"
	attrSHA256  = "user.io.rc2.FileAttr.SHA256"

	sidecarSuffix = ".rc2attr"
)

var errXattrUnsupported = errors.New("extended attributes not supported")

// fileAttrs is the validation metadata stored with a cached file.
type fileAttrs struct {
	Version int    `json:"version"`
	SHA256  string `json:"sha256"`
}

// writeAttrs stores attrs as extended attributes, or in a sidecar file when
// the filesystem has no xattr support.
func writeAttrs(path string, a fileAttrs) error {
	err := setXattrs(path, a)
	if err == nil {
		os.Remove(sidecarPath(path))
		return nil
	}
	if !errors.Is(err, errXattrUnsupported) {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return os.WriteFile(sidecarPath(path), data, 0644)
}

func readAttrs(path string) (fileAttrs, bool) {
	if a, err := getXattrs(path); err == nil {
		return a, true
	}
	data, err := os.ReadFile(sidecarPath(path))
	if err != nil {
		return fileAttrs{}, false
	}
	var a fileAttrs
	if json.Unmarshal(data, &a) != nil {
		return fileAttrs{}, false
	}
	return a, true
}

func sidecarPath(path string) string {
	return path + sidecarSuffix
}
