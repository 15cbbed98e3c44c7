package strategy

import (
	"fmt"

	"github.com/kestrelfin/etf-arbiter/internal/model"
)

// HighestWeightSelector picks the eligible ETF with the largest weight,
// breaking ties by lower rank then lexicographically lower etf_code.
type HighestWeightSelector struct{}

func NewHighestWeightSelector(config map[string]any) (FundSelector, error) {
	return &HighestWeightSelector{}, nil
}

func (s *HighestWeightSelector) Select(eligible []model.CandidateETF, event model.Event) (model.CandidateETF, string, bool) {
	if len(eligible) == 0 {
		return model.CandidateETF{}, "", false
	}

	best := eligible[0]
	for _, c := range eligible[1:] {
		if betterByWeight(c, best) {
			best = c
		}
	}
	return best, selectionReason(best), true
}

func betterByWeight(a, b model.CandidateETF) bool {
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	if a.Rank != b.Rank {
		return a.Rank < b.Rank
	}
	return a.ETFCode < b.ETFCode
}

func selectionReason(c model.CandidateETF) string {
	return fmt.Sprintf("selected %s (%s) weight %.2f%%, rank %d", c.ETFCode, c.ETFName, c.Weight*100, c.Rank)
}

// BestLiquiditySelector picks the eligible ETF with the highest daily
// turnover, which can differ from the highest-weight pick when a
// lower-weight ETF trades far more volume.
type BestLiquiditySelector struct{}

func NewBestLiquiditySelector(config map[string]any) (FundSelector, error) {
	return &BestLiquiditySelector{}, nil
}

func (s *BestLiquiditySelector) Select(eligible []model.CandidateETF, event model.Event) (model.CandidateETF, string, bool) {
	if len(eligible) == 0 {
		return model.CandidateETF{}, "", false
	}

	best := eligible[0]
	for _, c := range eligible[1:] {
		if c.DailyAmount > best.DailyAmount {
			best = c
		}
	}
	return best, fmt.Sprintf("selected %s (%s) for liquidity, daily amount %.0f", best.ETFCode, best.ETFName, best.DailyAmount), true
}
