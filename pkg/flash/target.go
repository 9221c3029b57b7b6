package flash

import (
	"io"

	"github.com/Sn0wAlice/rpi-os-flash/pkg/errors"
	"github.com/diskfs/go-diskfs/backend"
	"github.com/diskfs/go-diskfs/backend/file"
)

// Target is an exclusively held flash destination, written sequentially from offset 0.
type Target interface {
	io.Writer
	Sync() error
	Close() error
}

// Opener acquires a Target for a device identifier.
type Opener interface {
	Open(identifier string) (Target, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(identifier string) (Target, error)

func (f OpenerFunc) Open(identifier string) (Target, error) { return f(identifier) }

// ExclusiveOpener opens block devices read-write with O_EXCL, so the kernel refuses the
// open while the device or one of its partitions is mounted.
type ExclusiveOpener struct{}

func (ExclusiveOpener) Open(identifier string) (Target, error) {
	storage, err := file.OpenFromPath(identifier, false)
	if err != nil {
		return nil, err
	}

	w, err := storage.Writable()
	if err != nil {
		storage.Close()
		return nil, errors.Wrap(err, "device not writable")
	}

	return &deviceTarget{storage: storage, w: w}, nil
}

type deviceTarget struct {
	storage backend.Storage
	w       backend.WritableFile
	off     int64
}

func (t *deviceTarget) Write(p []byte) (int, error) {
	n, err := t.w.WriteAt(p, t.off)
	t.off += int64(n)
	return n, err
}

func (t *deviceTarget) Sync() error {
	f, err := t.storage.Sys()
	if err != nil {
		return err
	}
	return f.Sync()
}

func (t *deviceTarget) Close() error {
	return t.storage.Close()
}
