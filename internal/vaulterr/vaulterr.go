// Package vaulterr defines the error kinds raised by the vault core and
// the context each one carries.
package vaulterr

import "fmt"

// Kind identifies the category of a vault error, independent of the Go
// error type that wraps it.
type Kind int

const (
	SpecInvalid Kind = iota
	ConfigExists
	ConfigSerde
	IORead
	IOWrite
	Validation
	DecryptionNotForYou
	DecryptionOther
	EncryptionUntrusted
	EncryptionOther
	ProviderUnsupported
	KeyNotFound
)

func (k Kind) String() string {
	switch k {
	case SpecInvalid:
		return "SpecInvalid"
	case ConfigExists:
		return "ConfigExists"
	case ConfigSerde:
		return "ConfigSerde"
	case IORead:
		return "IORead"
	case IOWrite:
		return "IOWrite"
	case Validation:
		return "Validation"
	case DecryptionNotForYou:
		return "Decryption(NotForYou)"
	case DecryptionOther:
		return "Decryption(Other)"
	case EncryptionUntrusted:
		return "Encryption(Untrusted)"
	case EncryptionOther:
		return "Encryption(Other)"
	case ProviderUnsupported:
		return "Provider(Unsupported)"
	case KeyNotFound:
		return "KeyNotFound"
	default:
		return "Unknown"
	}
}

// Error is the vault core's single error type. It always carries a Kind
// and a human-readable context string; Cause, when present, is wrapped
// and participates in errors.Is/errors.As/errors.Unwrap.
type Error struct {
	Kind    Kind
	Context string
	Cause   error

	// Offenders lists recipients that could not be encrypted for, for
	// EncryptionUntrusted errors (see §4.2's offender enumeration).
	Offenders []string
}

func (e *Error) Error() string {
	msg := e.Context
	if msg == "" {
		msg = e.Kind.String()
	}
	for _, o := range e.Offenders {
		msg += "\n" + o
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a Kind-tagged error with a formatted context message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Context: fmt.Sprintf(format, args...)}
}

// Wrap builds a Kind-tagged error around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Context: fmt.Sprintf(format, args...), Cause: cause}
}

// WithOffenders attaches an offender enumeration to an encryption error.
func (e *Error) WithOffenders(offenders []string) *Error {
	e.Offenders = offenders
	return e
}

// Is reports whether any error in err's chain is a vaulterr.Error of kind k.
func Is(err error, k Kind) bool {
	var ve *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			ve = e
			if ve.Kind == k {
				return true
			}
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return false
}
