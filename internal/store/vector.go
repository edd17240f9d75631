package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/golang/snappy"
)

var errVectorLength = errors.New("vector blob length is not a multiple of 4")

// encodeVector packs v as little-endian float32 and compresses it.
func encodeVector(v []float32) []byte {
	raw := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(f))
	}
	return snappy.Encode(nil, raw)
}

func decodeVector(blob []byte) ([]float32, error) {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, fmt.Errorf("decompress vector: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, errVectorLength
	}
	v := make([]float32, len(raw)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return v, nil
}
