package benchmark_runner

import "github.com/cockroachdb/errors"

// Error categories. Test with errors.Is.
var (
	ErrConfig          = errors.New("configuration error")
	ErrUnsupportedMode = errors.New("unsupported mode")
	ErrPrematureEnd    = errors.New("premature end")
	ErrBackend         = errors.New("backend error")
	ErrClose           = errors.New("close error")
)

func backendError(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrBackend)
}

// closeError is both a backend and a close failure.
func closeError(err error, format string, args ...interface{}) error {
	return errors.Mark(backendError(err, format, args...), ErrClose)
}
