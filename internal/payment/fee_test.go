package payment

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSplitFee(t *testing.T) {
	tests := []struct {
		amount int64
		rate   string
		expert int64
		fee    int64
	}{
		{5000, "0.15", 4250, 750},
		{3333, "0.15", 2833, 500}, // 499.95 rounds up
		{1, "0.15", 1, 0},
		{7000, "0", 7000, 0},
		{100, "1.5", 0, 100},
		{0, "0.15", 0, 0},
	}
	for _, tt := range tests {
		expert, fee := SplitFee(tt.amount, decimal.RequireFromString(tt.rate))
		if expert != tt.expert || fee != tt.fee {
			t.Errorf("SplitFee(%d, %s) = %d/%d, want %d/%d", tt.amount, tt.rate, expert, fee, tt.expert, tt.fee)
		}
	}
}
