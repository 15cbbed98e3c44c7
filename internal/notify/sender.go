// Package notify defines the notification sink seam: out of scope per the
// specification beyond this interface. A real sender (email, webhook,
// chat) plugs in here; this package ships only a logging sender used when
// no real sink is configured.
package notify

import (
	"go.uber.org/zap"

	"github.com/kestrelfin/etf-arbiter/internal/model"
	"github.com/kestrelfin/etf-arbiter/internal/platform/logger"
)

// Sender accepts a finished, already-persisted signal.
type Sender interface {
	Send(signal model.TradingSignal) error
}

// LogSender simply logs the signal; it is the default when no external
// sink is configured.
type LogSender struct {
	log *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(signal model.TradingSignal) error {
	s.log.Info("signal emitted",
		zap.String("stock_code", signal.StockCode),
		zap.String("etf_code", signal.ETFCode),
		zap.String("confidence_level", string(signal.ConfidenceLevel)),
	)
	return nil
}
