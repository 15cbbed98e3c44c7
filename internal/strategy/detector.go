package strategy

import (
	"math"

	"github.com/kestrelfin/etf-arbiter/internal/model"
)

// Board identifies the listing board a code belongs to, which determines
// its daily price-limit percentage.
type Board string

const (
	BoardMain       Board = "main"
	BoardStarChiNext Board = "star_chinext"
	BoardBeijing    Board = "beijing"
	BoardUnknown    Board = "unknown"
)

var boardLimit = map[Board]float64{
	BoardMain:        0.10,
	BoardStarChiNext: 0.20,
	BoardBeijing:     0.30,
}

// InferBoard derives the listing board from a 6-digit code's prefix.
func InferBoard(code string) Board {
	if len(code) < 3 {
		return BoardUnknown
	}
	switch code[:3] {
	case "600", "601", "603", "605", "000", "001":
		return BoardMain
	case "688", "300", "301":
		return BoardStarChiNext
	}
	switch code[:2] {
	case "43", "83", "87":
		return BoardBeijing
	}
	if len(code) >= 3 && code[:3] == "920" {
		return BoardBeijing
	}
	return BoardUnknown
}

// LimitFor returns the daily limit fraction for a board, defaulting to the
// main-board 10% when the board cannot be inferred.
func LimitFor(board Board) float64 {
	if l, ok := boardLimit[board]; ok {
		return l
	}
	return boardLimit[BoardMain]
}

const (
	priceEpsilon  = 0.001
	changeEpsilon = 0.001
)

// LimitUpDetector implements EventDetector for the canonical A-share
// limit-up event: a price pinned at (or above, allowing for rounding) its
// board's daily ceiling.
type LimitUpDetector struct{}

// NewLimitUpDetector builds the detector; config is currently unused but
// accepted so the factory signature matches registry.Factory.
func NewLimitUpDetector(config map[string]any) (EventDetector, error) {
	return &LimitUpDetector{}, nil
}

func (d *LimitUpDetector) Detect(quote model.Quote) (model.Event, bool) {
	if !quote.IsLimitUp {
		return model.Event{}, false
	}

	board := InferBoard(quote.Code)
	limit := LimitFor(board)
	prevClose := quote.PrevClose
	if prevClose <= 0 && quote.ChangePct != -1 {
		prevClose = quote.Price / (1 + quote.ChangePct)
	}
	ceiling := math.Round(prevClose*(1+limit)*100) / 100

	if quote.Price < ceiling-priceEpsilon {
		return model.Event{}, false
	}
	if quote.ChangePct < limit-changeEpsilon {
		return model.Event{}, false
	}

	return model.Event{
		EventType:    model.EventLimitUp,
		Timestamp:    quote.Timestamp,
		StockCode:    quote.Code,
		StockName:    quote.Name,
		Price:        quote.Price,
		ChangePct:    quote.ChangePct,
		LimitTime:    quote.Timestamp,
		SealAmount:   quote.Amount,
		OpenCount:    0,
		IsFirstLimit: true,
	}, true
}

// IsValid rejects limit-up events whose change_pct is implausible for
// their inferred board (i.e. well below the board's minimum limit).
func (d *LimitUpDetector) IsValid(event model.Event) bool {
	if event.EventType != model.EventLimitUp {
		return false
	}
	board := InferBoard(event.StockCode)
	limit := LimitFor(board)
	return event.ChangePct >= limit-changeEpsilon
}
