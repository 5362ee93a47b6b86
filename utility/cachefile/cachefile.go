// Package cachefile stores opaque binary blobs on disk with LZ4
// compression. The renderer uses it to persist the driver's pipeline
// cache between runs.
package cachefile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/pierrec/lz4"
)

// MagicNumber identifies a cachefile, placed at the very start.
const MagicNumber uint32 = 0x4B504331 // "KPC1"

// MaxBlobLength bounds the stored payload size. Read treats a header
// claiming more than this as corrupt rather than allocating for it.
const MaxBlobLength = 256 << 20

// ErrFormat reports a file that is not a cachefile or is truncated.
var ErrFormat = errors.New("not a cachefile or corrupt header")

type header struct {
	Magic  uint32
	Length int64
}

// Write stores blob at path, replacing any previous contents. Blobs
// beyond MaxBlobLength are rejected, Read would refuse them anyway.
func Write(path string, blob []byte) error {
	if len(blob) > MaxBlobLength {
		return ErrFormat
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := binary.Write(file, binary.LittleEndian, header{
		Magic:  MagicNumber,
		Length: int64(len(blob)),
	}); err != nil {
		return err
	}

	compressor := lz4.NewWriter(file)
	if _, err := io.Copy(compressor, bytes.NewReader(blob)); err != nil {
		return err
	}
	return compressor.Close()
}

// Read loads the blob stored at path. A missing file surfaces the
// os.IsNotExist error unchanged so callers can treat it as a cold
// start.
func Read(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var head header
	if err := binary.Read(file, binary.LittleEndian, &head); err != nil {
		return nil, ErrFormat
	}
	if head.Magic != MagicNumber || head.Length < 0 || head.Length > MaxBlobLength {
		return nil, ErrFormat
	}

	blob := make([]byte, head.Length)
	if _, err := io.ReadFull(lz4.NewReader(file), blob); err != nil {
		return nil, ErrFormat
	}
	return blob, nil
}
