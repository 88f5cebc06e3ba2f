// Package persistence serializes the similarity index to durable snapshots.
//
// A snapshot carries the raw vector array and the parallel metadata mapping
// in one file, cross-checked on load: record N's vector and record N's
// metadata are either both present or the load fails with a CorruptionError.
// Saves are atomic (temp file + rename), so an unclean shutdown leaves either
// the previous complete snapshot or the new one, never a torn file.
package persistence

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/SalmanAh/sound2scene/codec"
	"github.com/SalmanAh/sound2scene/index"
)

// Bounds on header fields, checked before any allocation. The checksum can
// only vet the payload after it is read, so implausible sizes must be
// classified as corruption up front rather than crash the loader.
const (
	maxDimension     = 1 << 16
	maxRecordCount   = 1 << 31
	maxMetadataBytes = 1 << 32
)

// Options configures snapshot encoding.
type Options struct {
	// Compression selects payload compression. Defaults to CompressionNone.
	Compression Compression

	// Codec encodes the metadata section. Defaults to codec.Default.
	Codec codec.Codec
}

// Save writes a snapshot of the index to w.
func Save(w io.Writer, f *index.Flat, optFns ...func(o *Options)) error {
	opts := Options{
		Compression: CompressionNone,
		Codec:       codec.Default,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if !opts.Compression.valid() {
		return fmt.Errorf("persistence: invalid compression %d", opts.Compression)
	}

	dimension, vectors, meta := f.Snapshot()

	if err := writeOuterHeader(w, opts.Compression, opts.Codec.Name()); err != nil {
		return err
	}

	payload, closePayload, err := compressWriter(w, opts.Compression)
	if err != nil {
		return err
	}

	if err := writePayload(payload, dimension, vectors, meta, opts.Codec); err != nil {
		_ = closePayload()
		return err
	}
	return closePayload()
}

func writeOuterHeader(w io.Writer, comp Compression, codecName string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(MagicNumber)); err != nil {
		return fmt.Errorf("persistence: write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(Version)); err != nil {
		return fmt.Errorf("persistence: write version: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(comp)); err != nil {
		return fmt.Errorf("persistence: write compression: %w", err)
	}
	if len(codecName) > 255 {
		return fmt.Errorf("persistence: codec name too long: %q", codecName)
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(len(codecName))); err != nil {
		return fmt.Errorf("persistence: write codec name length: %w", err)
	}
	if _, err := io.WriteString(w, codecName); err != nil {
		return fmt.Errorf("persistence: write codec name: %w", err)
	}
	return nil
}

func writePayload(w io.Writer, dimension int, vectors []float32, meta []index.Metadata, c codec.Codec) error {
	metaBytes, err := c.Marshal(meta)
	if err != nil {
		return fmt.Errorf("persistence: encode metadata: %w", err)
	}

	// The checksum covers the logical payload: dimension, count, vectors and
	// metadata. The CRC trailer itself is written outside the hash.
	cw := newChecksumWriter(w)

	if err := binary.Write(cw, binary.LittleEndian, uint32(dimension)); err != nil {
		return fmt.Errorf("persistence: write dimension: %w", err)
	}
	if err := binary.Write(cw, binary.LittleEndian, uint64(len(meta))); err != nil {
		return fmt.Errorf("persistence: write record count: %w", err)
	}
	if err := binary.Write(cw, binary.LittleEndian, vectors); err != nil {
		return fmt.Errorf("persistence: write vectors: %w", err)
	}
	if err := binary.Write(cw, binary.LittleEndian, uint64(len(metaBytes))); err != nil {
		return fmt.Errorf("persistence: write metadata length: %w", err)
	}
	if _, err := cw.Write(metaBytes); err != nil {
		return fmt.Errorf("persistence: write metadata: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, cw.Sum()); err != nil {
		return fmt.Errorf("persistence: write checksum: %w", err)
	}
	return nil
}

// Load reads a snapshot from r and rebuilds the index.
//
// Any framing, checksum, or alignment violation fails with *CorruptionError;
// a partially readable snapshot is never loaded.
func Load(r io.Reader) (*index.Flat, error) {
	comp, codecName, err := readOuterHeader(r)
	if err != nil {
		return nil, err
	}

	c, ok := codec.ByName(codecName)
	if !ok {
		return nil, corrupt(fmt.Sprintf("unknown metadata codec %q", codecName), nil)
	}

	payload, closePayload, err := decompressReader(r, comp)
	if err != nil {
		return nil, err
	}
	defer closePayload()

	return readPayload(payload, c)
}

func readOuterHeader(r io.Reader) (Compression, string, error) {
	var magic, version uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return 0, "", corrupt("short read on magic", err)
	}
	if magic != MagicNumber {
		return 0, "", corrupt(fmt.Sprintf("invalid magic number 0x%08x", magic), nil)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return 0, "", corrupt("short read on version", err)
	}
	if version != Version {
		return 0, "", corrupt(fmt.Sprintf("unsupported version 0x%08x", version), nil)
	}

	var compByte uint8
	if err := binary.Read(r, binary.LittleEndian, &compByte); err != nil {
		return 0, "", corrupt("short read on compression", err)
	}
	comp := Compression(compByte)
	if !comp.valid() {
		return 0, "", corrupt(fmt.Sprintf("unknown compression %d", compByte), nil)
	}

	var nameLen uint8
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return 0, "", corrupt("short read on codec name length", err)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return 0, "", corrupt("short read on codec name", err)
	}

	return comp, string(name), nil
}

func readPayload(r io.Reader, c codec.Codec) (*index.Flat, error) {
	cr := newChecksumReader(r)

	var dimension uint32
	if err := binary.Read(cr, binary.LittleEndian, &dimension); err != nil {
		return nil, corrupt("short read on dimension", err)
	}
	if dimension > maxDimension {
		return nil, corrupt(fmt.Sprintf("implausible dimension %d", dimension), nil)
	}
	var recordCount uint64
	if err := binary.Read(cr, binary.LittleEndian, &recordCount); err != nil {
		return nil, corrupt("short read on record count", err)
	}
	if recordCount > maxRecordCount {
		return nil, corrupt(fmt.Sprintf("implausible record count %d", recordCount), nil)
	}
	if recordCount > 0 && dimension == 0 {
		return nil, corrupt(fmt.Sprintf("%d records with dimension 0", recordCount), nil)
	}

	vectors, err := readFloats(cr, recordCount*uint64(dimension))
	if err != nil {
		return nil, corrupt("short read on vector array", err)
	}

	var metaLen uint64
	if err := binary.Read(cr, binary.LittleEndian, &metaLen); err != nil {
		return nil, corrupt("short read on metadata length", err)
	}
	if metaLen > maxMetadataBytes {
		return nil, corrupt(fmt.Sprintf("implausible metadata length %d", metaLen), nil)
	}
	var metaBuf bytes.Buffer
	if _, err := io.CopyN(&metaBuf, cr, int64(metaLen)); err != nil {
		return nil, corrupt("short read on metadata", err)
	}
	metaBytes := metaBuf.Bytes()

	computed := cr.Sum()
	var stored uint32
	if err := binary.Read(r, binary.LittleEndian, &stored); err != nil {
		return nil, corrupt("short read on checksum", err)
	}
	if computed != stored {
		return nil, corrupt(fmt.Sprintf("checksum mismatch: stored 0x%08x, computed 0x%08x", stored, computed), nil)
	}

	var meta []index.Metadata
	if err := c.Unmarshal(metaBytes, &meta); err != nil {
		return nil, corrupt("metadata decode failed", err)
	}
	if uint64(len(meta)) != recordCount {
		return nil, corrupt(fmt.Sprintf("metadata count %d does not match record count %d", len(meta), recordCount), nil)
	}

	if recordCount == 0 {
		return index.New(func(o *index.Options) {
			o.Dimension = int(dimension)
		})
	}

	f, err := index.Restore(int(dimension), vectors, meta)
	if err != nil {
		return nil, corrupt("vector/metadata alignment", err)
	}
	return f, nil
}

// readFloats reads n float32 values in bounded chunks, so the allocation
// grows only as data actually arrives: a garbled count fails with a short
// read instead of a giant upfront allocation.
func readFloats(r io.Reader, n uint64) ([]float32, error) {
	const chunk = 1 << 16

	out := make([]float32, 0, min(n, chunk))
	buf := make([]float32, min(n, chunk))
	for n > 0 {
		c := min(n, uint64(len(buf)))
		if err := binary.Read(r, binary.LittleEndian, buf[:c]); err != nil {
			return nil, err
		}
		out = append(out, buf[:c]...)
		n -= c
	}
	return out, nil
}

// compressWriter wraps w per the compression mode. The returned close
// function flushes the compressor without closing w.
func compressWriter(w io.Writer, comp Compression) (io.Writer, func() error, error) {
	switch comp {
	case CompressionNone:
		bw := bufio.NewWriter(w)
		return bw, bw.Flush, nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("persistence: create zstd writer: %w", err)
		}
		return zw, zw.Close, nil
	case CompressionLZ4:
		lw := lz4.NewWriter(w)
		return lw, lw.Close, nil
	default:
		return nil, nil, fmt.Errorf("persistence: invalid compression %d", comp)
	}
}

func decompressReader(r io.Reader, comp Compression) (io.Reader, func(), error) {
	switch comp {
	case CompressionNone:
		return bufio.NewReader(r), func() {}, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, corrupt("zstd stream open failed", err)
		}
		return zr, zr.Close, nil
	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	default:
		return nil, nil, corrupt(fmt.Sprintf("invalid compression %d", comp), nil)
	}
}
