package cli

import (
	"github.com/cometadata/preprint-affiliations/internal/core/domain"
)

const (
	exitFailure      = 1
	exitInvalidInput = 2
	exitIncomplete   = 3
	// exitTempFail follows sysexits EX_TEMPFAIL: rerunning may succeed.
	exitTempFail = 75
)

func exitCode(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrBatchIncomplete):
		return exitIncomplete
	case domain.IsKind(err, domain.ErrInvalidInput):
		return exitInvalidInput
	case domain.IsKind(err, domain.ErrTemporary):
		return exitTempFail
	default:
		return exitFailure
	}
}
