// Package engine applies an ordered stream of transaction events to
// per-client accounts and tracks the dispute lifecycle of deposits.
//
// Invalid events are ignored, never surfaced: the input stream is untrusted
// and a malformed or out-of-order event must not take the run down for the
// well-formed clients. The only externally observable result is the final
// account snapshot.
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

type account struct {
	available decimal.Decimal
	held      decimal.Decimal
	locked    bool
}

// Engine owns the client id -> account mapping and the dispute tracker. It is
// not safe for concurrent use; events must be applied one at a time in input
// order. See the shard package for the partitioned variant.
type Engine struct {
	accounts map[uint16]*account
	disputes *tracker
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{
		accounts: make(map[uint16]*account),
		disputes: newTracker(),
	}
}

// Apply executes one transaction event. It never fails: events that cannot be
// applied are reported as ignored with a reason and leave every account
// untouched.
func (e *Engine) Apply(tx Transaction) Outcome {
	switch tx.Kind {
	case KindDeposit:
		return e.deposit(tx)
	case KindWithdrawal:
		return e.withdraw(tx)
	case KindDispute:
		return e.dispute(tx)
	case KindResolve:
		return e.resolve(tx)
	case KindChargeback:
		return e.chargeback(tx)
	default:
		return ignored(ReasonUnknownTx)
	}
}

func (e *Engine) deposit(tx Transaction) Outcome {
	if !tx.HasAmount {
		return ignored(ReasonMissingAmount)
	}
	if tx.Amount.IsNegative() {
		return ignored(ReasonNegativeAmount)
	}
	if e.disputes.known(tx.TX) {
		return ignored(ReasonDuplicateTx)
	}
	acc, ok := e.accounts[tx.Client]
	if ok && acc.locked {
		return ignored(ReasonAccountLocked)
	}
	if !ok {
		acc = &account{}
		e.accounts[tx.Client] = acc
	}
	acc.available = acc.available.Add(tx.Amount)
	e.disputes.registerDeposit(tx.TX, tx.Client, tx.Amount)
	return applied
}

func (e *Engine) withdraw(tx Transaction) Outcome {
	if !tx.HasAmount {
		return ignored(ReasonMissingAmount)
	}
	if tx.Amount.IsNegative() {
		return ignored(ReasonNegativeAmount)
	}
	if e.disputes.known(tx.TX) {
		return ignored(ReasonDuplicateTx)
	}
	acc, ok := e.accounts[tx.Client]
	if !ok {
		// Withdrawals never create accounts.
		return ignored(ReasonUnknownAccount)
	}
	if acc.locked {
		return ignored(ReasonAccountLocked)
	}
	if acc.available.LessThan(tx.Amount) {
		return ignored(ReasonInsufficientFunds)
	}
	acc.available = acc.available.Sub(tx.Amount)
	e.disputes.registerWithdrawal(tx.TX)
	return applied
}

func (e *Engine) dispute(tx Transaction) Outcome {
	acc, rec, reason := e.resolveRef(tx)
	if reason != "" {
		return ignored(reason)
	}
	if rec.state != stateNormal && rec.state != stateResolved {
		return ignored(ReasonDisputeState)
	}
	// Available goes down unconditionally, even below zero. The upstream
	// specification defines dispute this way; it is documented behavior,
	// not corrected here.
	acc.available = acc.available.Sub(rec.amount)
	acc.held = acc.held.Add(rec.amount)
	rec.state = stateDisputed
	return applied
}

func (e *Engine) resolve(tx Transaction) Outcome {
	acc, rec, reason := e.resolveRef(tx)
	if reason != "" {
		return ignored(reason)
	}
	if rec.state != stateDisputed {
		return ignored(ReasonDisputeState)
	}
	acc.held = acc.held.Sub(rec.amount)
	acc.available = acc.available.Add(rec.amount)
	rec.state = stateResolved
	return applied
}

func (e *Engine) chargeback(tx Transaction) Outcome {
	acc, rec, reason := e.resolveRef(tx)
	if reason != "" {
		return ignored(reason)
	}
	if rec.state != stateDisputed {
		return ignored(ReasonDisputeState)
	}
	// Held funds leave the account for good; the total shrinks and the
	// account is frozen against any further event.
	acc.held = acc.held.Sub(rec.amount)
	acc.locked = true
	rec.state = stateChargedBack
	return applied
}

// resolveRef performs the shared validation of dispute-lifecycle references:
// the account must exist and be unlocked, the tx id must name a deposit owned
// by the same client.
func (e *Engine) resolveRef(tx Transaction) (*account, *disputeRecord, Reason) {
	acc, ok := e.accounts[tx.Client]
	if !ok {
		return nil, nil, ReasonUnknownAccount
	}
	if acc.locked {
		return nil, nil, ReasonAccountLocked
	}
	rec, reason := e.disputes.lookup(tx.TX, tx.Client)
	if reason != "" {
		return nil, nil, reason
	}
	return acc, rec, ""
}

// Account returns the reported state of one client.
func (e *Engine) Account(client uint16) (Account, bool) {
	acc, ok := e.accounts[client]
	if !ok {
		return Account{}, false
	}
	return e.report(client, acc), true
}

// Snapshot returns all accounts ordered by client id. The result is a copy;
// mutating it does not affect the engine.
func (e *Engine) Snapshot() []Account {
	out := make([]Account, 0, len(e.accounts))
	for client, acc := range e.accounts {
		out = append(out, e.report(client, acc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Client < out[j].Client })
	return out
}

// Size returns the number of accounts and how many of them are locked.
func (e *Engine) Size() (accounts, locked int) {
	for _, acc := range e.accounts {
		if acc.locked {
			locked++
		}
	}
	return len(e.accounts), locked
}

func (e *Engine) report(client uint16, acc *account) Account {
	return Account{
		Client:    client,
		Available: acc.available,
		Held:      acc.held,
		Total:     acc.available.Add(acc.held),
		Locked:    acc.locked,
	}
}
