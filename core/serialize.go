package core

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
)

// EncodeWeightVector serializes and gzip-compresses w (spec §4.1 step 4:
// "Serialize noised weights to a byte string; compress"). This replaces
// the prototype's pickle step with gob, the idiomatic Go equivalent.
func EncodeWeightVector(w WeightVector) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(w); err != nil {
		return nil, fmt.Errorf("encode weight vector: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("encode weight vector: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWeightVector reverses EncodeWeightVector.
func DecodeWeightVector(data []byte) (WeightVector, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return WeightVector{}, fmt.Errorf("decode weight vector: %w", err)
	}
	defer gz.Close()
	var w WeightVector
	if err := gob.NewDecoder(gz).Decode(&w); err != nil && err != io.EOF {
		return WeightVector{}, fmt.Errorf("decode weight vector: %w", err)
	}
	return w, nil
}
