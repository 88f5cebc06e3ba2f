package sound2scene

import (
	"errors"
	"fmt"

	"github.com/SalmanAh/sound2scene/embedding"
	"github.com/SalmanAh/sound2scene/generate"
	"github.com/SalmanAh/sound2scene/index"
	"github.com/SalmanAh/sound2scene/persistence"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrClosed is returned when the pipeline is used after Close.
	ErrClosed = errors.New("pipeline is closed")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// translateError normalizes subpackage errors into the root vocabulary.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}

	return err
}

// IsEmbeddingFailure reports whether err stems from the embedding capability.
func IsEmbeddingFailure(err error) bool {
	var e *embedding.Error
	return errors.As(err, &e)
}

// IsGenerationFailure reports whether err stems from the image-generation
// capability.
func IsGenerationFailure(err error) bool {
	var e *generate.Error
	return errors.As(err, &e)
}

// IsRetryableGenerationFailure reports whether err is a generation failure
// the backend flagged as transient.
func IsRetryableGenerationFailure(err error) bool {
	var e *generate.Error
	return errors.As(err, &e) && e.Retryable
}

// IsIndexCorruption reports whether err indicates a snapshot that failed
// validation on load. Corruption is fatal: the pipeline refuses to start on
// a partial index rather than silently dropping records.
func IsIndexCorruption(err error) bool {
	var e *persistence.CorruptionError
	return errors.As(err, &e)
}
