package particles

import "fmt"

// ErrorKind classifies configuration errors detected before a particle
// system is built.
type ErrorKind uint8

const (
	// InvalidBox means some axis of a box has max <= min.
	InvalidBox ErrorKind = iota + 1
	// InvalidParticleCount means some per-axis sample count is <= 0, or a
	// system was requested with no fluid particles.
	InvalidParticleCount
	// InvalidDomain means the neighbor-search domain has a non-positive extent.
	InvalidDomain
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidBox:
		return "invalid box"
	case InvalidParticleCount:
		return "invalid particle count"
	case InvalidDomain:
		return "invalid domain"
	default:
		return fmt.Sprintf("error kind %d", uint8(k))
	}
}

// Error is a configuration error carrying its kind.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

// Is matches any *Error of the same kind, so callers can test against the
// sentinel values below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidBox           = &Error{Kind: InvalidBox}
	ErrInvalidParticleCount = &Error{Kind: InvalidParticleCount}
	ErrInvalidDomain        = &Error{Kind: InvalidDomain}
)

func errorf(kind ErrorKind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
