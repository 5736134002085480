package dice

import (
	"errors"

	"go.uber.org/zap"
)

// ErrEmptySequence is returned when a pick is requested from an empty sequence.
var ErrEmptySequence = errors.New("dice: cannot choose from an empty sequence")

// Choose returns one element of items picked uniformly at random.
//
// Precondition: src must be non-nil.
// Postcondition: Returns an element of items, or ErrEmptySequence when items is empty.
func Choose[T any](src Source, items []T) (T, error) {
	var zero T
	if len(items) == 0 {
		return zero, ErrEmptySequence
	}
	return items[src.Intn(len(items))], nil
}

// loggedSource wraps a Source and logs every draw at debug level.
type loggedSource struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedSource returns a Source that delegates to src and logs each draw.
//
// Precondition: src and logger must be non-nil.
func NewLoggedSource(src Source, logger *zap.Logger) Source {
	return &loggedSource{src: src, logger: logger}
}

// Intn delegates to the wrapped Source and logs the bound and the result.
func (l *loggedSource) Intn(n int) int {
	v := l.src.Intn(n)
	l.logger.Debug("random draw",
		zap.Int("n", n),
		zap.Int("value", v),
	)
	return v
}
