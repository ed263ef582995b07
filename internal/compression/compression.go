package compression

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"math"

	"autosave-sync-engine/internal/errors"
)

// Normalize turns a submitted payload into canonical content plus a
// compression-ratio metric. Raw payloads pass through with ratio 1.0;
// gzip payloads are decompressed and the ratio is decompressed size over
// wire size, rounded to two decimal places.
//
// Failures here are PayloadError: retrying the same bytes cannot succeed,
// so callers must reject the save attempt instead of retrying.
func Normalize(payload []byte, isCompressed bool) (json.RawMessage, float64, error) {
	if len(payload) == 0 {
		return nil, 0, errors.Payload("Empty payload", nil)
	}

	if !isCompressed {
		if !json.Valid(payload) {
			return nil, 0, errors.Payload("Payload is not valid JSON", nil)
		}
		return json.RawMessage(payload), 1.0, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, 0, errors.Payload("Can't decompress payload", err)
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, 0, errors.Payload("Can't decompress payload", err)
	}

	if !json.Valid(decompressed) {
		return nil, 0, errors.Payload("Decompressed payload is not valid JSON", nil)
	}

	ratio := float64(len(decompressed)) / float64(len(payload))
	ratio = math.Round(ratio*100) / 100

	return json.RawMessage(decompressed), ratio, nil
}

// Compress gzips content. Used by tests and clients that submit
// compressed autosave payloads.
func Compress(content []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(content); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
