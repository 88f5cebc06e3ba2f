package persistence

import "fmt"

const (
	// MagicNumber identifies sound2scene snapshot files (ASCII: "SND1").
	MagicNumber = 0x534E4431

	// Version is the current snapshot format version.
	Version = 0x00010000
)

// Compression selects the snapshot payload compression.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

// String returns a string representation of the Compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

func (c Compression) valid() bool {
	return c <= CompressionLZ4
}

// CorruptionError indicates that a snapshot failed validation on load:
// bad framing, checksum mismatch, or vector/metadata misalignment.
//
// Corruption is fatal at load time; the index is never silently truncated to
// a consistent prefix. The underlying error (if any) can be accessed via
// errors.Unwrap.
type CorruptionError struct {
	Detail string
	cause  error
}

func (e *CorruptionError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("snapshot corrupted: %s: %v", e.Detail, e.cause)
	}
	return fmt.Sprintf("snapshot corrupted: %s", e.Detail)
}

func (e *CorruptionError) Unwrap() error { return e.cause }

func corrupt(detail string, cause error) *CorruptionError {
	return &CorruptionError{Detail: detail, cause: cause}
}
