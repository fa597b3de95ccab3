package orchestrator

import (
	"github.com/grid-infra/dl-acceptor/types"
)

// getResultString returns a colored string representing the run result
func getResultString(status types.RunStatus) string {
	switch status {
	case types.RunStatusPass:
		return "✓ pass"
	case types.RunStatusSkip:
		return "- skip"
	default:
		return "✗ fail"
	}
}

// errString renders an error for table display, empty when nil
func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
