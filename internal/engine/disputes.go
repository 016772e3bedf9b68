package engine

import "github.com/shopspring/decimal"

// Dispute lifecycle per deposit transaction id:
//
//	Normal -> Disputed -> Resolved -> Disputed -> ...
//	                   -> ChargedBack (terminal)
type disputeState uint8

const (
	stateNormal disputeState = iota
	stateDisputed
	stateResolved
	stateChargedBack
)

// disputeRecord exists for every successfully applied deposit. The amount is
// copied from the deposit and never changes afterwards.
type disputeRecord struct {
	client uint16
	amount decimal.Decimal
	state  disputeState
}

// tracker owns the deposit tx id -> dispute lifecycle mapping. Withdrawal tx
// ids are remembered separately: they occupy the global id space but are never
// disputable.
type tracker struct {
	deposits    map[uint32]*disputeRecord
	withdrawals map[uint32]struct{}
}

func newTracker() *tracker {
	return &tracker{
		deposits:    make(map[uint32]*disputeRecord),
		withdrawals: make(map[uint32]struct{}),
	}
}

func (t *tracker) known(tx uint32) bool {
	if _, ok := t.deposits[tx]; ok {
		return true
	}
	_, ok := t.withdrawals[tx]
	return ok
}

func (t *tracker) registerDeposit(tx uint32, client uint16, amount decimal.Decimal) {
	t.deposits[tx] = &disputeRecord{client: client, amount: amount}
}

func (t *tracker) registerWithdrawal(tx uint32) {
	t.withdrawals[tx] = struct{}{}
}

// lookup resolves a dispute-lifecycle reference. A tx id that belongs to a
// withdrawal is reported distinctly from one that was never seen.
func (t *tracker) lookup(tx uint32, client uint16) (*disputeRecord, Reason) {
	rec, ok := t.deposits[tx]
	if !ok {
		if _, spent := t.withdrawals[tx]; spent {
			return nil, ReasonNotDisputable
		}
		return nil, ReasonUnknownTx
	}
	if rec.client != client {
		return nil, ReasonClientMismatch
	}
	return rec, ""
}
