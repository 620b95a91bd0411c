package ledger

import (
	"errors"
	"fmt"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
)

// IntegrityError reports a broken append or chain invariant. Every
// IntegrityError is fatal to the writer that observed it.
type IntegrityError struct {
	Code   contracts.ViolationCode
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger integrity: %s: %s", e.Code, e.Detail)
}

func integrityErr(code contracts.ViolationCode, format string, args ...any) *IntegrityError {
	return &IntegrityError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// CodeOf returns the violation code carried by err, if any.
func CodeOf(err error) (contracts.ViolationCode, bool) {
	var ie *IntegrityError
	if errors.As(err, &ie) {
		return ie.Code, true
	}
	return "", false
}
