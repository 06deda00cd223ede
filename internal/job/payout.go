package job

// Labor splits in basis points. Materials are not split: they pass through to
// the contractor at 100%. The broker takes the labor remainder so the three
// shares always sum exactly to the labor total.
const (
	contractorLaborShareBps = 7000
	routerLaborShareBps     = 2000
)

// PayoutBreakdown is the canonical split of a job's totals. It is always
// recomputed from the job's stored labor/materials totals, never taken from
// client input.
type PayoutBreakdown struct {
	ContractorPayoutCents int64
	RouterEarningsCents   int64
	BrokerFeeCents        int64
	ChargeAmountCents     int64
}

// ComputePayout derives the fixed-split breakdown for the given totals.
func ComputePayout(laborCents, materialsCents int64) PayoutBreakdown {
	contractorLabor := laborCents * contractorLaborShareBps / 10000
	routerLabor := laborCents * routerLaborShareBps / 10000
	brokerLabor := laborCents - contractorLabor - routerLabor

	return PayoutBreakdown{
		ContractorPayoutCents: contractorLabor + materialsCents,
		RouterEarningsCents:   routerLabor,
		BrokerFeeCents:        brokerLabor,
		ChargeAmountCents:     laborCents + materialsCents,
	}
}

// ApplyPayout stores the recomputed breakdown on the job.
func ApplyPayout(j *Job) {
	b := ComputePayout(j.LaborTotalCents, j.MaterialsTotalCents)
	j.ContractorPayoutCents = b.ContractorPayoutCents
	j.RouterEarningsCents = b.RouterEarningsCents
	j.BrokerFeeCents = b.BrokerFeeCents
}
