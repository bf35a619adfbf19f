//go:build linux || darwin

package filecache

import (
	"errors"
	"strconv"

	"golang.org/x/sys/unix"
)

func setXattrs(path string, a fileAttrs) error {
	if err := unix.Setxattr(path, attrVersion, []byte(strconv.Itoa(a.Version)), 0); err != nil {
		return xattrErr(err)
	}
	if err := unix.Setxattr(path, attrSHA256, []byte(a.SHA256), 0); err != nil {
		return xattrErr(err)
	}
	return nil
}

func getXattrs(path string) (fileAttrs, error) {
	buf := make([]byte, 128)
	n, err := unix.Getxattr(path, attrVersion, buf)
	if err != nil {
		return fileAttrs{}, xattrErr(err)
	}
	version, err := strconv.Atoi(string(buf[:n]))
	if err != nil {
		return fileAttrs{}, err
	}
	n, err = unix.Getxattr(path, attrSHA256, buf)
	if err != nil {
		return fileAttrs{}, xattrErr(err)
	}
	return fileAttrs{Version: version, SHA256: string(buf[:n])}, nil
}

func xattrErr(err error) error {
	if errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.EPERM) {
		return errXattrUnsupported
	}
	return err
}
