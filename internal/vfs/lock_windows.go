//go:build windows

// lock_windows.go implements the data-directory lock on Windows via an
// exclusive open (share mode 0): a second open fails while the first handle
// is held.
package vfs

import (
	"io"
	"os"
	"syscall"
)

type fileLock struct {
	f *os.File
}

func lockFile(name string) (io.Closer, error) {
	p, err := syscall.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	h, err := syscall.CreateFile(p, syscall.GENERIC_READ|syscall.GENERIC_WRITE, 0, nil,
		syscall.OPEN_ALWAYS, syscall.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	return &fileLock{f: os.NewFile(uintptr(h), name)}, nil
}

func (l *fileLock) Close() error {
	return l.f.Close()
}
