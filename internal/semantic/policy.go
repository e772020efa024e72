package semantic

import (
	"github.com/gzhole/textgate/internal/signal"
)

// FailureConfidence is the confidence of a fail-closed verdict.
const FailureConfidence = 0.5

// FailurePolicy turns an external-call failure into a verdict. It is applied
// uniformly to transport errors, timeouts and unparsable replies.
type FailurePolicy interface {
	Name() string
	Apply(source, version string, err error) signal.Verdict
}

// FailClosed treats a failure as a violation.
type FailClosed struct{}

func (FailClosed) Name() string { return "fail_closed" }

func (FailClosed) Apply(source, version string, err error) signal.Verdict {
	return signal.Positive(source, version, signal.CategoryValidationFailure, FailureConfidence,
		"semantic validation failed; treating as violation", "",
		map[string]any{"error": err.Error(), "policy": "fail_closed"})
}

// FailOpen treats a failure as nothing detected.
type FailOpen struct{}

func (FailOpen) Name() string { return "fail_open" }

func (FailOpen) Apply(source, version string, err error) signal.Verdict {
	v := signal.Negative(source, version, "semantic validation failed; allowing")
	v.Metadata = map[string]any{"error": err.Error(), "policy": "fail_open"}
	return v
}

// PolicyFor selects the policy from the fail_closed setting.
func PolicyFor(failClosed bool) FailurePolicy {
	if failClosed {
		return FailClosed{}
	}
	return FailOpen{}
}
