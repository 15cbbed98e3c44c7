package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kestrelfin/etf-arbiter/internal/model"
)

func baseDraftInput() DraftInput {
	return DraftInput{
		Event: model.Event{
			EventType:  model.EventLimitUp,
			Timestamp:  time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC),
			StockCode:  "600519",
			StockName:  "Kweichow Moutai",
			Price:      1980.0,
			SealAmount: 2e8,
			LimitTime:  time.Date(2026, 3, 2, 9, 31, 0, 0, time.UTC),
		},
		Fund: model.CandidateETF{
			ETFCode:     "510300",
			ETFName:     "CSI 300 ETF",
			Weight:      0.08,
			DailyAmount: 6e8,
		},
		SecondsToClose: 3300,
		Top10Ratio:     0.5,
	}
}

func TestDraftCarriesStockPriceFromEvent(t *testing.T) {
	sig := Draft(baseDraftInput(), DefaultScoringConfig())
	assert.Equal(t, 1980.0, sig.StockPrice)
}

func TestDraftConfidenceBucketsFollowCutoffs(t *testing.T) {
	cfg := DefaultScoringConfig()

	high := baseDraftInput()
	high.Event.SealAmount = 5e9
	high.Fund.Weight = 0.15
	high.Fund.DailyAmount = 1e9
	high.SecondsToClose = 7000

	sig := Draft(high, cfg)
	assert.Equal(t, model.ConfidenceHigh, sig.ConfidenceLevel)
	assert.GreaterOrEqual(t, sig.ConfidenceScore, cfg.CutoffHigh)

	low := baseDraftInput()
	low.Event.SealAmount = 1e6
	low.Fund.Weight = 0.01
	low.Fund.DailyAmount = 1e6
	low.SecondsToClose = 100

	sig = Draft(low, cfg)
	assert.Equal(t, model.ConfidenceLow, sig.ConfidenceLevel)
	assert.Less(t, sig.ConfidenceScore, cfg.CutoffMedium)
}

func TestDraftScoreIsMonotonicInSealAmount(t *testing.T) {
	cfg := DefaultScoringConfig()

	small := baseDraftInput()
	small.Event.SealAmount = 1e8

	big := baseDraftInput()
	big.Event.SealAmount = 9e8

	scoreSmall := Draft(small, cfg).ConfidenceScore
	scoreBig := Draft(big, cfg).ConfidenceScore
	assert.Greater(t, scoreBig, scoreSmall, "a larger seal amount must strictly raise the order sub-score and total")
}

func TestDraftScoreIsMonotonicInWeight(t *testing.T) {
	cfg := DefaultScoringConfig()

	lowWeight := baseDraftInput()
	lowWeight.Fund.Weight = 0.02

	highWeight := baseDraftInput()
	highWeight.Fund.Weight = 0.09

	assert.Greater(t, Draft(highWeight, cfg).ConfidenceScore, Draft(lowWeight, cfg).ConfidenceScore)
}

func TestDraftSubScoresAreClampedToUnitRange(t *testing.T) {
	cfg := DefaultScoringConfig()
	in := baseDraftInput()
	in.Event.SealAmount = 50e9   // far above the 1e9 normalization cap
	in.Fund.Weight = 1.0         // far above the 0.10 normalization cap
	in.Fund.DailyAmount = 50e9   // far above the 5e8 normalization cap
	in.SecondsToClose = 100_000  // far above the 2h normalization cap

	sig := Draft(in, cfg)
	for name, v := range sig.Breakdown {
		if name == "score" {
			continue
		}
		assert.LessOrEqual(t, v, 1.0, "%s must be clamped to <= 1", name)
		assert.GreaterOrEqual(t, v, 0.0, "%s must be clamped to >= 0", name)
	}
}

func TestRiskHighWhenCloseToClose(t *testing.T) {
	cfg := DefaultScoringConfig()
	in := baseDraftInput()
	in.SecondsToClose = cfg.RiskHighTimeSeconds - 1

	assert.Equal(t, model.RiskHigh, Draft(in, cfg).RiskLevel)
}

func TestRiskHighWhenTop10RatioExceedsThreshold(t *testing.T) {
	cfg := DefaultScoringConfig()
	in := baseDraftInput()
	in.SecondsToClose = 5000
	in.Top10Ratio = cfg.RiskTop10RatioHigh + 0.01

	assert.Equal(t, model.RiskHigh, Draft(in, cfg).RiskLevel)
}

func TestRiskHighWhenRepeatedlyOpened(t *testing.T) {
	cfg := DefaultScoringConfig()
	in := baseDraftInput()
	in.SecondsToClose = 5000
	in.Top10Ratio = 0.1
	in.Event.OpenCount = 3

	assert.Equal(t, model.RiskHigh, Draft(in, cfg).RiskLevel)
}

func TestRiskLowWhenEarlyMorningLimitAndAmpleTimeToClose(t *testing.T) {
	cfg := DefaultScoringConfig()
	in := baseDraftInput()
	in.SecondsToClose = cfg.RiskLowTimeSeconds + 100
	in.Top10Ratio = 0.1
	in.Event.OpenCount = 0
	in.Event.LimitTime = time.Date(2026, 3, 2, 9, 35, 0, 0, time.UTC)

	assert.Equal(t, model.RiskLow, Draft(in, cfg).RiskLevel)
}

func TestRiskMediumIsTheDefaultBucket(t *testing.T) {
	cfg := DefaultScoringConfig()
	in := baseDraftInput()
	in.SecondsToClose = 5000
	in.Top10Ratio = 0.3
	in.Event.OpenCount = 1
	in.Event.LimitTime = time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)

	assert.Equal(t, model.RiskMedium, Draft(in, cfg).RiskLevel)
}

func TestDraftReasonIncludesWeightAndSelectionReason(t *testing.T) {
	cfg := DefaultScoringConfig()
	in := baseDraftInput()
	in.SelectionReason = "highest weight among 3 candidates"

	reason := Draft(in, cfg).Reason
	assert.Contains(t, reason, "highest weight among 3 candidates")
	assert.Contains(t, reason, "8.00%")
}
