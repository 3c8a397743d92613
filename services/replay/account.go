package replay

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const msPerDay = int64(24 * 60 * 60 * 1000)

// Account is the single shared-mutable resource of a run. Every balance
// read that feeds a sizing decision happens under the same lock as the
// decision itself, so parallel per-instrument workers can never size two
// trades off the same stale balance.
type Account struct {
	mu sync.Mutex

	balance decimal.Decimal
	initial decimal.Decimal

	day        int64 // UTC day ordinal of the accumulator
	dayStart   decimal.Decimal
	dayLoss    decimal.Decimal
	maxLossPct decimal.Decimal
	suppressed bool

	log *zap.Logger
}

// NewAccount opens the book with the initial balance. maxDailyLossPct of 0
// disables suppression.
func NewAccount(initial decimal.Decimal, maxDailyLossPct float64, log *zap.Logger) *Account {
	if log == nil {
		log = zap.NewNop()
	}
	return &Account{
		balance:    initial,
		initial:    initial,
		day:        -1,
		dayStart:   initial,
		maxLossPct: decimal.NewFromFloat(maxDailyLossPct),
		log:        log,
	}
}

// Balance returns the settled balance.
func (a *Account) Balance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// SizeAndCommit runs fn against the current balance under the account lock.
// fn returning an error aborts with no state change; otherwise the returned
// size is the committed order size. A suppressed day rejects before sizing.
func (a *Account) SizeAndCommit(ts int64, fn func(balance decimal.Decimal) (decimal.Decimal, error)) (decimal.Decimal, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollDay(ts)
	if a.suppressed {
		return decimal.Zero, false, nil
	}
	size, err := fn(a.balance)
	if err != nil {
		return decimal.Zero, false, err
	}
	return size, true, nil
}

// Settle applies a closed trade's P&L and feeds the daily-loss accumulator.
// Crossing the daily limit suppresses new signals until the next UTC day;
// open positions are never force-closed by suppression.
func (a *Account) Settle(ts int64, pnl decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollDay(ts)
	a.balance = a.balance.Add(pnl)
	if pnl.IsNegative() {
		a.dayLoss = a.dayLoss.Add(pnl.Neg())
	}
	if a.maxLossPct.IsPositive() && !a.suppressed {
		limit := a.dayStart.Mul(a.maxLossPct)
		if a.dayLoss.GreaterThanOrEqual(limit) {
			a.suppressed = true
			a.log.Warn("daily loss limit hit, suppressing signals until next UTC day",
				zap.String("day_loss", a.dayLoss.String()),
				zap.String("limit", limit.String()))
		}
	}
}

// Suppressed reports whether signal generation is blocked at ts.
func (a *Account) Suppressed(ts int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollDay(ts)
	return a.suppressed
}

func (a *Account) rollDay(ts int64) {
	day := ts / msPerDay
	if day != a.day {
		a.day = day
		a.dayStart = a.balance
		a.dayLoss = decimal.Zero
		a.suppressed = false
	}
}
