package poker

import (
	"github.com/shopspring/decimal"

	"agiletools/pkg/types"
)

// VoteStats summarizes a revealed round. Non-numeric cards such as "?" or
// "pass" count toward TotalVotes only.
type VoteStats struct {
	TotalVotes   int    `json:"total_votes"`
	NumericVotes int    `json:"numeric_votes"`
	Average      string `json:"average,omitempty"`
	Min          string `json:"min,omitempty"`
	Max          string `json:"max,omitempty"`
	Consensus    bool   `json:"consensus"`
}

// ComputeStats derives statistics from the votes of a round.
func ComputeStats(votes map[string]*types.Vote) VoteStats {
	stats := VoteStats{TotalVotes: len(votes)}

	var sum decimal.Decimal
	var lo, hi decimal.Decimal
	first := ""
	consensus := len(votes) > 0
	for _, v := range votes {
		if first == "" {
			first = v.Value
		} else if v.Value != first {
			consensus = false
		}

		n, ok := types.ParseNumericCard(v.Value)
		if !ok {
			continue
		}
		if stats.NumericVotes == 0 || n.LessThan(lo) {
			lo = n
		}
		if stats.NumericVotes == 0 || n.GreaterThan(hi) {
			hi = n
		}
		sum = sum.Add(n)
		stats.NumericVotes++
	}
	stats.Consensus = consensus

	if stats.NumericVotes > 0 {
		avg := sum.Div(decimal.NewFromInt(int64(stats.NumericVotes))).Round(2)
		stats.Average = avg.String()
		stats.Min = lo.String()
		stats.Max = hi.String()
	}
	return stats
}
