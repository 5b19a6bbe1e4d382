package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"

	"ors-matrix/internal/model"
)

// Codec names recorded on each block row.
const codecZstdColumns = "zstd-columns-v1"

var errCorruptBlock = errors.New("corrupt measurement block")

// blockCodec turns one chunk's measurements into a compressed columnar block.
// The layout before compression is a uvarint record count, then the row_src
// column as varint deltas, the row_dest column as varints, and the two value
// columns as little-endian float64 bits. NaN survives the round trip.
type blockCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newBlockCodec(readOnly bool) (*blockCodec, error) {
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	c := &blockCodec{decoder: decoder}
	if readOnly {
		return c, nil
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		decoder.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	c.encoder = encoder
	return c, nil
}

func (c *blockCodec) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	c.decoder.Close()
}

// encode returns the compressed block and the size of the uncompressed layout.
func (c *blockCodec) encode(ms []model.Measurement) ([]byte, int) {
	raw := make([]byte, 0, binary.MaxVarintLen64*(1+2*len(ms))+16*len(ms))
	raw = binary.AppendUvarint(raw, uint64(len(ms)))

	var prev int64
	for _, m := range ms {
		raw = binary.AppendVarint(raw, m.Key.Src-prev)
		prev = m.Key.Src
	}
	for _, m := range ms {
		raw = binary.AppendVarint(raw, m.Key.Dest)
	}
	for _, m := range ms {
		raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(m.SrcToDest))
	}
	for _, m := range ms {
		raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(m.DestToSrc))
	}
	return c.encoder.EncodeAll(raw, nil), len(raw)
}

func (c *blockCodec) decode(data []byte) ([]model.Measurement, error) {
	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptBlock, err)
	}

	n, off := binary.Uvarint(raw)
	if off <= 0 || n > uint64(len(raw)) {
		return nil, fmt.Errorf("%w: bad record count", errCorruptBlock)
	}
	ms := make([]model.Measurement, n)

	varint := func() (int64, error) {
		v, k := binary.Varint(raw[off:])
		if k <= 0 {
			return 0, fmt.Errorf("%w: truncated key column", errCorruptBlock)
		}
		off += k
		return v, nil
	}
	var prev int64
	for i := range ms {
		d, err := varint()
		if err != nil {
			return nil, err
		}
		prev += d
		ms[i].Key.Src = prev
	}
	for i := range ms {
		if ms[i].Key.Dest, err = varint(); err != nil {
			return nil, err
		}
	}

	if len(raw)-off != 16*len(ms) {
		return nil, fmt.Errorf("%w: value columns hold %d bytes, want %d", errCorruptBlock, len(raw)-off, 16*len(ms))
	}
	for i := range ms {
		ms[i].SrcToDest = math.Float64frombits(binary.LittleEndian.Uint64(raw[off:]))
		off += 8
	}
	for i := range ms {
		ms[i].DestToSrc = math.Float64frombits(binary.LittleEndian.Uint64(raw[off:]))
		off += 8
	}
	return ms, nil
}
