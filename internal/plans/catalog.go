package plans

import (
	"github.com/shopspring/decimal"

	"github.com/interviewd-ai/interviewd-backend/pkg/enums"
)

// Plan is one entry in the static catalog. All time is whole seconds.
type Plan struct {
	ID                    enums.PlanID
	Name                  string
	IncludedSeconds       int64
	OverageLimitSeconds   int64
	OverageRatePerMinute  decimal.Decimal
	MaxConcurrentSessions int
}

// CappedSeconds is the hard ceiling on used+reserved time for organizations
// without overage approval.
func (p Plan) CappedSeconds() int64 {
	return p.IncludedSeconds + p.OverageLimitSeconds
}

var catalog = map[enums.PlanID]Plan{
	enums.PlanStandard: {
		ID:                    enums.PlanStandard,
		Name:                  "Standard",
		IncludedSeconds:       100 * 60 * 60, // 100 hours
		OverageLimitSeconds:   10 * 60 * 60,  // 10 hours before approval is required
		OverageRatePerMinute:  decimal.NewFromFloat(0.50),
		MaxConcurrentSessions: 10,
	},
}

// Lookup returns the plan for the given id.
func Lookup(id enums.PlanID) (Plan, bool) {
	plan, ok := catalog[id]
	return plan, ok
}

// MustLookup returns the plan or the standard fallback for unknown ids.
// Subscription rows always reference a catalog plan; the fallback only guards
// against rows written before a plan was retired.
func MustLookup(id enums.PlanID) Plan {
	if plan, ok := catalog[id]; ok {
		return plan
	}
	return catalog[enums.PlanStandard]
}
