package vmsuper

import (
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// maxLogBytes is the size threshold past which a sandbox's log is rotated
// before the next launch appends to it further.
const maxLogBytes = 16 * 1024 * 1024

// rotateLogIfLarge compresses path into path+".zst" and truncates it when it
// has grown past maxLogBytes, so a long-lived, frequently-restarted sandbox
// doesn't accumulate an unbounded plaintext log on disk.
func rotateLogIfLarge(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() < maxLogBytes {
		return nil
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(path+".zst", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer dst.Close()

	zw, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	src.Close()
	return os.Truncate(path, 0)
}
