// Package suppression decides when a detector pass must not surface
// customer alerts. A suppressed pass still runs reconciliation: existing
// open alerts of the type get closed with the suppression reason attached.
package suppression

import (
	"fmt"

	customerdomain "github.com/smallbiznis/signalway/internal/customer/domain"
	detectordomain "github.com/smallbiznis/signalway/internal/detector/domain"
)

// Suppression reasons, recorded verbatim on closed alert rows.
const (
	ReasonIntegrationError     = "integration_error"
	ReasonNoHistoricalActivity = "no_historical_activity"
)

// Verdict is the outcome of evaluating the suppression rules.
type Verdict struct {
	Suppressed bool
	Reason     string
	Detail     string
}

// EvaluateCustomer applies the customer-status rule. It needs only the
// state row, so callers run it before paying for a provider fetch. A
// customer with no state row is treated as active.
func EvaluateCustomer(state *customerdomain.CustomerState) Verdict {
	if state == nil || state.Status == customerdomain.StatusActive {
		return Verdict{}
	}
	detail := ""
	if state.Reason != nil {
		detail = *state.Reason
	}
	return Verdict{
		Suppressed: true,
		Reason:     fmt.Sprintf("customer_status:%s", state.Status),
		Detail:     detail,
	}
}

// EvaluateSignal applies the post-fetch rules to a successfully fetched
// signal. Only the no-baseline rule lives here; provider failures never
// reach this point.
func EvaluateSignal(signal detectordomain.Signal) Verdict {
	if signal.NoBaseline {
		return Verdict{
			Suppressed: true,
			Reason:     ReasonNoHistoricalActivity,
			Detail:     "customer has no historical activity to compare against",
		}
	}
	return Verdict{}
}

// ForProviderError is the verdict used when the provider fetch itself
// failed. The pass is suppressed for the customer; the provider outage
// is tracked by a separate integration alert.
func ForProviderError(provider string, fetchErr error) Verdict {
	detail := ""
	if fetchErr != nil {
		detail = fetchErr.Error()
	}
	return Verdict{
		Suppressed: true,
		Reason:     ReasonIntegrationError,
		Detail:     fmt.Sprintf("provider %s unavailable: %s", provider, detail),
	}
}
