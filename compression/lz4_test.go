package compression

import (
	"bytes"
	"strings"
	"testing"
)

func TestLz4RoundTrip(t *testing.T) {

	payload := []byte(strings.Repeat(`{"name":"cluster","values":["B cells","T cells"]}`, 200))

	var compressed bytes.Buffer
	if err := CompressLz4(payload, &compressed); err != nil {
		t.Fatalf("compress: %v", err)
	}

	if compressed.Len() >= len(payload) {
		t.Errorf("expected repetitive payload to shrink: %d >= %d", compressed.Len(), len(payload))
	}

	var restored bytes.Buffer
	if err := DecompressLz4(&compressed, &restored); err != nil {
		t.Fatalf("decompress: %v", err)
	}

	if !bytes.Equal(payload, restored.Bytes()) {
		t.Errorf("payload mismatch after round trip")
	}
}
