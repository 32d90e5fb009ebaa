package strategies

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/global-credit/credit_core/internal/domain/entities"
)

// thresholds tunes the shared evaluation policy per country
type thresholds struct {
	minCreditScore    int
	reviewCreditScore int
	maxDebtToIncome   decimal.Decimal // total debt / annual income
	installmentMonths int64           // assumed repayment horizon
}

var (
	twelve  = decimal.NewFromInt(12)
	hundred = decimal.NewFromInt(100)
)

// evaluate applies the common scoring policy. Fallback banking data always
// lands on REVIEW: the conservative artifact must never approve or reject.
func evaluate(app *entities.Application, banking *entities.BankingData, t thresholds) entities.Evaluation {
	if banking.IsFallback() {
		return entities.Evaluation{
			Recommendation: entities.RecommendReview,
			RiskScore:      decimal.NewFromInt(50),
			Notes:          []string{"banking data unavailable, conservative fallback profile used"},
		}
	}

	var notes []string
	risk := decimal.NewFromInt(20)

	if banking.HasDefaults {
		return entities.Evaluation{
			Recommendation: entities.RecommendReject,
			RiskScore:      decimal.NewFromInt(95),
			Notes:          []string{"active payment defaults on record"},
		}
	}

	if banking.CreditScore < t.reviewCreditScore {
		return entities.Evaluation{
			Recommendation: entities.RecommendReject,
			RiskScore:      decimal.NewFromInt(90),
			Notes:          []string{fmt.Sprintf("credit score %d below minimum %d", banking.CreditScore, t.reviewCreditScore)},
		}
	}

	annualIncome := app.MonthlyIncome.Mul(twelve)
	debtToIncome := decimal.Zero
	if annualIncome.IsPositive() {
		debtToIncome = banking.TotalDebt.Div(annualIncome).Round(4)
	}

	installment := app.RequestedAmount.Div(decimal.NewFromInt(t.installmentMonths)).Round(2)
	disposable := app.MonthlyIncome.Sub(banking.MonthlyObligations)

	if debtToIncome.GreaterThan(t.maxDebtToIncome) {
		risk = risk.Add(decimal.NewFromInt(30))
		notes = append(notes, fmt.Sprintf("debt-to-income ratio %s exceeds limit %s", debtToIncome, t.maxDebtToIncome))
	}
	if installment.GreaterThan(disposable) {
		risk = risk.Add(decimal.NewFromInt(35))
		notes = append(notes, "estimated installment exceeds disposable income")
	}
	if banking.CreditScore < t.minCreditScore {
		risk = risk.Add(decimal.NewFromInt(20))
		notes = append(notes, fmt.Sprintf("credit score %d below preferred %d", banking.CreditScore, t.minCreditScore))
	}

	if risk.GreaterThan(hundred) {
		risk = hundred
	}

	switch {
	case risk.LessThanOrEqual(decimal.NewFromInt(40)):
		return entities.Evaluation{Recommendation: entities.RecommendApprove, RiskScore: risk, Notes: notes}
	case risk.LessThanOrEqual(decimal.NewFromInt(70)):
		return entities.Evaluation{Recommendation: entities.RecommendReview, RiskScore: risk, Notes: notes}
	default:
		return entities.Evaluation{Recommendation: entities.RecommendReject, RiskScore: risk, Notes: notes}
	}
}
