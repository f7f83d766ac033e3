package acquisition

import (
	"context"
	"errors"

	"github.com/gamedock/gamedock/internal/debrid"
	"github.com/gamedock/gamedock/internal/download"
	"github.com/gamedock/gamedock/internal/extract"
	"github.com/gamedock/gamedock/internal/procwait"
)

// ErrorKind classifies acquisition failures for the caller.
type ErrorKind string

const (
	ErrKindNone                  ErrorKind = ""
	ErrKindResolverTimeout       ErrorKind = "ResolverTimeout"
	ErrKindDownloadFailed        ErrorKind = "DownloadFailed"
	ErrKindArchiveCorrupt        ErrorKind = "ArchiveCorrupt"
	ErrKindPasswordProtected     ErrorKind = "PasswordProtected"
	ErrKindUnsupportedFormat     ErrorKind = "UnsupportedFormat"
	ErrKindNoInstallerFound      ErrorKind = "NoInstallerFound"
	ErrKindProcessWaitTimeout    ErrorKind = "ProcessWaitTimeout"
	ErrKindVerificationFailed    ErrorKind = "VerificationFailed"
	ErrKindUserCancelled         ErrorKind = "UserCancelled"
	ErrKindMaliciousHashDetected ErrorKind = "MaliciousHashDetected"
	ErrKindInternal              ErrorKind = "Internal"
)

// Sentinel errors raised inside the pipeline itself.
var (
	ErrNoInstallerFound = errors.New("acquisition: no installer executable found")
	ErrUserCancelled    = errors.New("acquisition: cancelled by user")
	ErrJobNotFound      = errors.New("acquisition: job not found")
	ErrNoLink           = errors.New("acquisition: candidate has no magnet or direct link")
	ErrWrongState       = errors.New("acquisition: operation not valid in current job state")
)

// classifyError maps any pipeline error onto the taxonomy.
func classifyError(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrKindNone
	case errors.Is(err, ErrUserCancelled) || errors.Is(err, context.Canceled):
		return ErrKindUserCancelled
	case errors.Is(err, debrid.ErrResolveTimeout):
		return ErrKindResolverTimeout
	case errors.Is(err, download.ErrDownloadFailed):
		return ErrKindDownloadFailed
	case errors.Is(err, extract.ErrCorrupt):
		return ErrKindArchiveCorrupt
	case errors.Is(err, extract.ErrPasswordProtected):
		return ErrKindPasswordProtected
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return ErrKindUnsupportedFormat
	case errors.Is(err, ErrNoInstallerFound):
		return ErrKindNoInstallerFound
	case errors.Is(err, procwait.ErrWaitTimeout):
		return ErrKindProcessWaitTimeout
	default:
		return ErrKindInternal
	}
}

// isHardFailure reports whether an error kind is terminal without retry.
// Everything else leaves the job retryable from its last safe checkpoint.
func isHardFailure(kind ErrorKind) bool {
	switch kind {
	case ErrKindArchiveCorrupt, ErrKindPasswordProtected, ErrKindUserCancelled:
		return true
	default:
		return false
	}
}
