package stage

import (
	"github.com/kingrea/playpublish/internal/fault"
	"github.com/kingrea/playpublish/internal/playstore"
)

const authHint = "the access token was refused; re-issue it or re-grant publisher access, then re-run"

// RequestError classifies a failed API call that no stage-specific kind
// covers. err must be non-nil.
func RequestError(stageID string, err error) error {
	fe := fault.Wrap(fault.RequestFailed, err).InStage(stageID).WithDiagnostic(playstore.Diagnostic(err))
	if playstore.IsAuth(err) {
		fe = fe.WithHint(authHint)
	}
	return fe
}

// Degradable reports whether a best-effort call's failure may become a
// warning. Authentication failures never degrade.
func Degradable(err error) bool {
	return err != nil && !playstore.IsAuth(err)
}
