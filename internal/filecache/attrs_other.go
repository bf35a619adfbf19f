//go:build !linux && !darwin

package filecache

func setXattrs(string, fileAttrs) error {
	return errXattrUnsupported
}

func getXattrs(string) (fileAttrs, error) {
	return fileAttrs{}, errXattrUnsupported
}
