// Package eligibility decides whether a subscription receives an order
// for a delivery cycle. The checks run in a fixed order and the first
// failing check determines the outcome.
package eligibility

import (
	"github.com/cratebox/cratebox-backend/pkg/enums"
)

// Outcome classifies the result of an eligibility evaluation.
type Outcome string

const (
	// OutcomeEligible means an order should be generated.
	OutcomeEligible Outcome = "eligible"
	// OutcomeSkipped means the cycle's work for this subscription is
	// already done (an order exists), so nothing is owed.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeExcluded means the subscription does not participate in
	// this cycle at all.
	OutcomeExcluded Outcome = "excluded"
)

const (
	ReasonNotActive          = "subscription not active"
	ReasonOrderExists        = "order already exists for cycle"
	ReasonSeasonalMismatch   = "seasonal subscription outside qualifying cycle"
	ReasonBoxTypeNotSellable = "box type not sellable"
)

// Input carries the facts the rules need. Callers resolve the lookups
// (existing order, catalog state) before evaluation so the rules stay pure.
type Input struct {
	Status             enums.SubscriptionStatus
	Frequency          enums.SubscriptionFrequency
	HasExistingOrder   bool
	SeasonalQualifying bool
	BoxSellable        bool
}

// Decision is the outcome plus the reason for any non-eligible result.
type Decision struct {
	Outcome Outcome
	Reason  string
}

// Resolve evaluates the ordered eligibility rules for one subscription
// against one cycle.
func Resolve(in Input) Decision {
	if in.Status != enums.SubscriptionStatusActive {
		return Decision{Outcome: OutcomeExcluded, Reason: ReasonNotActive}
	}
	if in.HasExistingOrder {
		return Decision{Outcome: OutcomeSkipped, Reason: ReasonOrderExists}
	}
	if in.Frequency == enums.SubscriptionFrequencySeasonal && !in.SeasonalQualifying {
		return Decision{Outcome: OutcomeExcluded, Reason: ReasonSeasonalMismatch}
	}
	if !in.BoxSellable {
		return Decision{Outcome: OutcomeExcluded, Reason: ReasonBoxTypeNotSellable}
	}
	return Decision{Outcome: OutcomeEligible}
}
