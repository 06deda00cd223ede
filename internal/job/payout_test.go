package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputePayout(t *testing.T) {
	tests := []struct {
		name           string
		laborCents     int64
		materialsCents int64
		want           PayoutBreakdown
	}{
		{
			name:           "even split",
			laborCents:     10000,
			materialsCents: 5000,
			want: PayoutBreakdown{
				ContractorPayoutCents: 12000, // 7000 labor + 5000 materials
				RouterEarningsCents:   2000,
				BrokerFeeCents:        1000,
				ChargeAmountCents:     15000,
			},
		},
		{
			name:       "labor only",
			laborCents: 30000,
			want: PayoutBreakdown{
				ContractorPayoutCents: 21000,
				RouterEarningsCents:   6000,
				BrokerFeeCents:        3000,
				ChargeAmountCents:     30000,
			},
		},
		{
			name:           "materials pass through untouched",
			materialsCents: 9999,
			want: PayoutBreakdown{
				ContractorPayoutCents: 9999,
				ChargeAmountCents:     9999,
			},
		},
		{
			name:       "rounding remainder lands on broker",
			laborCents: 101, // 70, 20, and 11 to the broker
			want: PayoutBreakdown{
				ContractorPayoutCents: 70,
				RouterEarningsCents:   20,
				BrokerFeeCents:        11,
				ChargeAmountCents:     101,
			},
		},
		{
			name: "zero totals",
			want: PayoutBreakdown{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputePayout(tt.laborCents, tt.materialsCents)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputePayoutSharesSumExactly(t *testing.T) {
	for _, labor := range []int64{0, 1, 7, 99, 101, 12345, 999999} {
		b := ComputePayout(labor, 0)
		laborSum := (b.ContractorPayoutCents) + b.RouterEarningsCents + b.BrokerFeeCents
		assert.Equal(t, labor, laborSum, "labor %d must split without loss", labor)
	}
}

func TestApplyPayout(t *testing.T) {
	j := &Job{LaborTotalCents: 10000, MaterialsTotalCents: 2500}
	ApplyPayout(j)

	assert.Equal(t, int64(9500), j.ContractorPayoutCents)
	assert.Equal(t, int64(2000), j.RouterEarningsCents)
	assert.Equal(t, int64(1000), j.BrokerFeeCents)
}
