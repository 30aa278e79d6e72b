package compression

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
)

func CompressLz4(src []byte, output *bytes.Buffer) error {
	zw := lz4.NewWriter(output)

	_, writeErr := zw.Write(src)
	if writeErr != nil {
		return writeErr
	}

	flushErr := zw.Flush()
	if flushErr != nil {
		return flushErr
	}

	return zw.Close()
}

func DecompressLz4(src io.Reader, output *bytes.Buffer) error {
	zr := lz4.NewReader(src)

	_, copyErr := io.Copy(output, zr)
	return copyErr
}

// NewLz4Reader streams the decompressed payload of src.
func NewLz4Reader(src io.Reader) io.Reader {
	return lz4.NewReader(src)
}
