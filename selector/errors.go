package selector

import "fmt"

// RouteErrorKind tags the reason a Select call failed, replacing
// downcasting of a generic error with an explicit switch-on-kind idiom.
type RouteErrorKind string

const (
	KindModelNotFound               RouteErrorKind = "model_not_found"
	KindModelDisabled                RouteErrorKind = "model_disabled"
	KindNoEnabledBackends            RouteErrorKind = "no_enabled_backends"
	KindNoBackendsMatchUserTags      RouteErrorKind = "no_backends_match_user_tags"
	KindNoBackendsWithPositiveWeight RouteErrorKind = "no_backends_with_positive_weight"
	KindSpecificBackendUnavailable   RouteErrorKind = "specific_backend_unavailable"
)

// Totals summarizes the candidate pool at the point a selection failed.
type Totals struct {
	Total   int
	Enabled int
	Healthy int
}

// CandidateReason explains why one specific backend was dropped from the
// final weighted-draw pool.
type CandidateReason struct {
	RouteID      string
	Provider     string
	Model        string
	Healthy      bool
	FailureCount int
	Reason       string
}

// RouteSelectionError is the tagged error variant surfaced by the
// selector and route coordinator — never downcast a plain error to
// recover detail, switch on Kind instead.
type RouteSelectionError struct {
	Kind       RouteErrorKind
	ModelName  string
	ProviderID string
	UserTags   []string
	Totals     Totals
	Candidates []CandidateReason
}

func (e *RouteSelectionError) Error() string {
	switch e.Kind {
	case KindModelNotFound:
		return fmt.Sprintf("model not found: %s", e.ModelName)
	case KindModelDisabled:
		return fmt.Sprintf("model disabled: %s", e.ModelName)
	case KindNoEnabledBackends:
		return fmt.Sprintf("no enabled backends for model %s (total=%d enabled=%d healthy=%d)",
			e.ModelName, e.Totals.Total, e.Totals.Enabled, e.Totals.Healthy)
	case KindNoBackendsMatchUserTags:
		return fmt.Sprintf("no backends match user tags %v for model %s (total=%d enabled=%d)",
			e.UserTags, e.ModelName, e.Totals.Total, e.Totals.Enabled)
	case KindNoBackendsWithPositiveWeight:
		return fmt.Sprintf("no backends with positive effective weight for model %s (%d candidates considered)",
			e.ModelName, len(e.Candidates))
	case KindSpecificBackendUnavailable:
		return fmt.Sprintf("provider %s is unavailable for model %s", e.ProviderID, e.ModelName)
	default:
		return fmt.Sprintf("route selection failed: %s", e.Kind)
	}
}
