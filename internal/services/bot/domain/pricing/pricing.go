// Package pricing estimates model call costs and checks them against the
// remaining spend budget before the call is made.
package pricing

import (
	"strings"

	platformerrors "github.com/featherpost/featherpost/internal/platform/errors"
)

// perThousandTokensUSD is the cost table per 1K tokens.
var perThousandTokensUSD = map[string]float64{
	"gpt-4o":      0.03,
	"gpt-4o-mini": 0.00015,
}

// Recommendations returned with an affordability decision.
const (
	RecommendationApproved = "APPROVED"
	RecommendationDenied   = "DENIED"
)

// Decision is the pre-call affordability verdict.
type Decision struct {
	Model          string
	Tokens         int64
	EstimatedCost  float64
	RemainingUSD   float64
	CanAfford      bool
	Recommendation string
}

// Models lists the models with known pricing.
func Models() []string {
	models := make([]string, 0, len(perThousandTokensUSD))
	for model := range perThousandTokensUSD {
		models = append(models, model)
	}
	return models
}

// EstimateCost prices a call of the given token count.
func EstimateCost(model string, tokens int64) (float64, error) {
	model = strings.TrimSpace(model)
	rate, ok := perThousandTokensUSD[model]
	if !ok {
		return 0, platformerrors.WithMetadata(
			platformerrors.CodeBudgetUnknownModel,
			"no pricing for model",
			map[string]string{"model": model},
		)
	}
	if tokens < 0 {
		return 0, platformerrors.New(platformerrors.CodeBudgetInvalidSpend, "token count must not be negative")
	}
	return float64(tokens) / 1000 * rate, nil
}

// CheckAffordability prices the call and compares it against the remaining
// budget. The comparison is strict: a call that costs exactly the remaining
// budget is denied.
func CheckAffordability(remainingUSD float64, model string, tokens int64) (Decision, error) {
	cost, err := EstimateCost(model, tokens)
	if err != nil {
		return Decision{}, err
	}
	decision := Decision{
		Model:         model,
		Tokens:        tokens,
		EstimatedCost: cost,
		RemainingUSD:  remainingUSD,
		CanAfford:     cost < remainingUSD,
	}
	if decision.CanAfford {
		decision.Recommendation = RecommendationApproved
	} else {
		decision.Recommendation = RecommendationDenied
	}
	return decision, nil
}
