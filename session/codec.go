package session

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/troupe-dev/troupe/core"
)

// Snapshot blobs are framed as a 4-byte magic, one format version byte and
// one compression byte, followed by the body. The body is CBOR in Core
// Deterministic Encoding (RFC 8949 section 4.2): identical snapshots always
// encode to identical blobs.
const (
	blobVersion = 1

	compressionNone byte = 0
	compressionZstd byte = 1

	headerLen = 6
)

var blobMagic = []byte("TRSN")

// ErrCorruptBlob reports a snapshot blob that cannot be decoded. It wraps
// the specific failure, so errors.Is works across all decode paths.
var ErrCorruptBlob = errors.New("corrupt snapshot blob")

// encMode encodes with deterministic map key order and smallest-form
// numbers. Times carry tag 0 as RFC 3339 text so sub-second precision
// survives the round trip.
var encMode cbor.EncMode

// decMode accepts standard CBOR. Any-typed targets decode maps as
// map[string]any, matching what JSON-derived tool arguments look like
// everywhere else in the module.
var decMode cbor.DecMode

// zstdEncoder and zstdDecoder are shared across calls; both are safe for
// concurrent use. Encoder concurrency is pinned to one goroutine so the
// compressed bytes are reproducible too.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encOptions.TimeTag = cbor.EncTagRequired

	var err error
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("session: cbor encoder init failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("session: cbor decoder init failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic("session: zstd encoder init failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("session: zstd decoder init failed: " + err.Error())
	}
}

// Encode serializes a snapshot into a framed blob. The body is compressed
// with zstd when that makes it smaller and stored raw otherwise.
func Encode(snap *core.Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, errors.New("session: cannot encode nil snapshot")
	}
	body, err := encMode.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	compression := compressionNone
	if compressed := zstdEncoder.EncodeAll(body, nil); len(compressed) < len(body) {
		compression = compressionZstd
		body = compressed
	}

	blob := make([]byte, 0, headerLen+len(body))
	blob = append(blob, blobMagic...)
	blob = append(blob, blobVersion, compression)
	return append(blob, body...), nil
}

// Decode parses a framed blob back into a snapshot. Damaged or foreign
// blobs return an error wrapping ErrCorruptBlob.
func Decode(blob []byte) (*core.Snapshot, error) {
	if len(blob) < headerLen {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorruptBlob, len(blob))
	}
	if !bytes.Equal(blob[:len(blobMagic)], blobMagic) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptBlob, blob[:len(blobMagic)])
	}
	if v := blob[4]; v != blobVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorruptBlob, v)
	}

	body := blob[headerLen:]
	switch compression := blob[5]; compression {
	case compressionNone:
	case compressionZstd:
		decompressed, err := zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd body: %v", ErrCorruptBlob, err)
		}
		body = decompressed
	default:
		return nil, fmt.Errorf("%w: unknown compression tag %d", ErrCorruptBlob, compression)
	}

	var snap core.Snapshot
	if err := decMode.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("%w: cbor body: %v", ErrCorruptBlob, err)
	}
	return &snap, nil
}
