package speech

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Compress gzips audio. Used above the dispatcher's size threshold.
func Compress(audio []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(audio); err != nil {
		return nil, fmt.Errorf("failed to compress audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize compressed audio: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed audio: %w", err)
	}
	defer r.Close()

	audio, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress audio: %w", err)
	}
	return audio, nil
}

// IsCompressed reports whether data carries the gzip magic bytes.
func IsCompressed(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}
