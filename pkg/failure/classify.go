package failure

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/moverwatch/moverwatch/pkg/sanitize"
	"github.com/moverwatch/moverwatch/pkg/types"
)

// ErrValidation marks errors caused by bad input. Wrap with
// fmt.Errorf("...: %w", failure.ErrValidation) to classify explicitly.
var ErrValidation = errors.New("validation error")

// ErrDoNotRetry marks errors that must never be retried regardless of
// category.
var ErrDoNotRetry = errors.New("not retryable")

// Classify maps a native error onto the fixed (category, severity) table.
func Classify(err error) (types.ErrorCategory, types.ErrorSeverity) {
	switch {
	case err == nil:
		return types.CategoryUnknown, types.SeverityLow

	case errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM):
		return types.CategoryPermission, types.SeverityHigh

	case errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) || isNetTimeout(err):
		return types.CategoryTimeout, types.SeverityMedium

	case errors.Is(err, syscall.ENOMEM) || errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE):
		return types.CategoryResource, types.SeverityCritical

	case isNetwork(err):
		return types.CategoryNetwork, types.SeverityMedium

	case errors.Is(err, ErrValidation) || errors.Is(err, fs.ErrInvalid):
		return types.CategoryValidation, types.SeverityMedium

	case isSyscall(err):
		return types.CategorySystem, types.SeverityHigh

	default:
		return types.CategoryUnknown, types.SeverityMedium
	}
}

func isNetTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func isNetwork(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var operr *net.OpError
	return errors.As(err, &operr)
}

func isSyscall(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno)
}

// NewRecord builds a classified, sanitized record for err in the given
// component context.
func NewRecord(err error, context string) types.ErrorRecord {
	cat, sev := Classify(err)
	return types.ErrorRecord{
		ID:        uuid.NewString(),
		Category:  cat,
		Severity:  sev,
		Message:   sanitize.Error(err),
		Context:   context,
		Timestamp: time.Now(),
	}
}

// Permanent reports whether err must not be retried: permission and
// validation failures, and anything tagged ErrDoNotRetry.
func Permanent(err error) bool {
	if errors.Is(err, ErrDoNotRetry) {
		return true
	}
	cat, _ := Classify(err)
	return cat == types.CategoryPermission || cat == types.CategoryValidation
}
