package holvistore

import (
	"os"

	"github.com/function61/holvi/pkg/holvitypes"
)

// UploadSink streams an in-flight upload into an exclusively-created file.
// Commit fsyncs and only then reports success; Close before Commit unlinks
// the partial file, so a crashed or aborted upload never leaves bytes behind.
type UploadSink struct {
	file      *os.File
	path      string
	written   int64
	finalized bool
}

func (u *UploadSink) Write(p []byte) (int, error) {
	n, err := u.file.Write(p)
	u.written += int64(n)
	if err != nil {
		return n, holvitypes.NewError(holvitypes.ErrWritingToFileFailed, err)
	}

	return n, nil
}

func (u *UploadSink) Commit() error {
	if err := u.file.Sync(); err != nil {
		return holvitypes.NewError(holvitypes.ErrWritingToFileFailed, err)
	}

	if err := u.file.Close(); err != nil {
		return holvitypes.NewError(holvitypes.ErrWritingToFileFailed, err)
	}

	u.finalized = true

	return nil
}

// Close is safe to defer unconditionally: after a successful Commit it is a
// no-op, on any other path it drops the partial file. Unlink errors are
// swallowed (the file may never have made it to disk).
func (u *UploadSink) Close() error {
	if u.finalized {
		return nil
	}

	_ = u.file.Close()
	_ = os.Remove(u.path)

	return nil
}

func (u *UploadSink) BytesWritten() int64 {
	return u.written
}
