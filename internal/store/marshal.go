package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/roach88/omega/internal/affinity"
	"github.com/roach88/omega/internal/combo"
)

// zstd encoder/decoder pools; checkpoints run on the coordinator goroutine
// but the CLI may read runs concurrently.
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// marshalCompleted serializes the completed unit set to a compressed BLOB.
// A nil or empty bitmap is stored as NULL.
func marshalCompleted(b *roaring.Bitmap) ([]byte, error) {
	if b == nil || b.IsEmpty() {
		return nil, nil
	}
	raw, err := b.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("marshal completed units: %w", err)
	}
	enc := getZstdEncoder()
	defer putZstdEncoder(enc)
	return enc.EncodeAll(raw, nil), nil
}

// unmarshalCompleted is the inverse of marshalCompleted. NULL yields an
// empty bitmap.
func unmarshalCompleted(blob []byte) (*roaring.Bitmap, error) {
	b := roaring.New()
	if len(blob) == 0 {
		return b, nil
	}
	dec := getZstdDecoder()
	defer putZstdDecoder(dec)
	raw, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress completed units: %w", err)
	}
	if err := b.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("unmarshal completed units: %w", err)
	}
	return b, nil
}

func marshalSpace(s combo.Space) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal space: %w", err)
	}
	return string(data), nil
}

func unmarshalSpace(text string) (combo.Space, error) {
	var s combo.Space
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return combo.Space{}, fmt.Errorf("unmarshal space: %w", err)
	}
	return s, nil
}

func marshalThresholds(t affinity.Thresholds) (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal thresholds: %w", err)
	}
	return string(data), nil
}

func unmarshalThresholds(text string) (affinity.Thresholds, error) {
	var t affinity.Thresholds
	if err := json.Unmarshal([]byte(text), &t); err != nil {
		return affinity.Thresholds{}, fmt.Errorf("unmarshal thresholds: %w", err)
	}
	return t, nil
}

// marshalFailed always produces a JSON array, never null.
func marshalFailed(f []FailedUnit) (string, error) {
	if f == nil {
		f = []FailedUnit{}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("marshal failed units: %w", err)
	}
	return string(data), nil
}

func unmarshalFailed(text string) ([]FailedUnit, error) {
	var f []FailedUnit
	if err := json.Unmarshal([]byte(text), &f); err != nil {
		return nil, fmt.Errorf("unmarshal failed units: %w", err)
	}
	return f, nil
}
