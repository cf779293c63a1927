package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied indica que el bot no tiene privilegios de admin para la acción.
	// Nunca se reintenta en línea; la recuperación corre por su propio camino.
	ErrPermissionDenied = errors.New("permission denied: bot lacks admin standing")

	// ErrNotFound indica que el recurso pedido no existe (p. ej. sin invite guardado)
	ErrNotFound = errors.New("not found")

	// ErrRetriesExhausted indica que un bucle de reintentos agotó todos sus intentos
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// TransientError wraps a network/timeout failure of an external call.
// Callers retry these up to a fixed bound before abandoning the single action.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError for operation op
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err should be retried
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermission reports whether err is a permission failure
func IsPermission(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsNotFound reports whether err is a missing-resource failure
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
