package payment

import "github.com/shopspring/decimal"

// SplitFee divides a charge between the expert and the platform. The fee is
// rounded half-up to a whole minor unit and never exceeds the amount.
func SplitFee(amount int64, rate decimal.Decimal) (expert, fee int64) {
	if amount <= 0 || !rate.IsPositive() {
		return amount, 0
	}
	f := decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
	if f > amount {
		f = amount
	}
	return amount - f, f
}
