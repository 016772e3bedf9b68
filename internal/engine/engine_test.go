package engine

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustApply(t *testing.T, e *Engine, tx Transaction) {
	t.Helper()
	if out := e.Apply(tx); !out.Applied {
		t.Fatalf("%s tx=%d not applied: %s", tx.Kind, tx.TX, out.Reason)
	}
}

func mustIgnore(t *testing.T, e *Engine, tx Transaction, want Reason) {
	t.Helper()
	out := e.Apply(tx)
	if out.Applied {
		t.Fatalf("%s tx=%d unexpectedly applied", tx.Kind, tx.TX)
	}
	if out.Reason != want {
		t.Fatalf("%s tx=%d ignored for %q, want %q", tx.Kind, tx.TX, out.Reason, want)
	}
}

func assertAccount(t *testing.T, e *Engine, client uint16, available, held string, locked bool) {
	t.Helper()
	acc, ok := e.Account(client)
	if !ok {
		t.Fatalf("account %d does not exist", client)
	}
	if !acc.Available.Equal(dec(available)) {
		t.Fatalf("client %d available=%s, want %s", client, acc.Available, available)
	}
	if !acc.Held.Equal(dec(held)) {
		t.Fatalf("client %d held=%s, want %s", client, acc.Held, held)
	}
	if !acc.Total.Equal(acc.Available.Add(acc.Held)) {
		t.Fatalf("client %d total=%s breaks total==available+held", client, acc.Total)
	}
	if acc.Held.IsNegative() {
		t.Fatalf("client %d held=%s is negative", client, acc.Held)
	}
	if acc.Locked != locked {
		t.Fatalf("client %d locked=%v, want %v", client, acc.Locked, locked)
	}
}

func TestDepositsAccumulate(t *testing.T) {
	e := New()
	mustApply(t, e, Deposit(3, 11, dec("2.3")))
	assertAccount(t, e, 3, "2.3", "0", false)

	mustApply(t, e, Deposit(3, 12, dec("0.13")))
	assertAccount(t, e, 3, "2.43", "0", false)
}

func TestDepositCreatesAccountLazily(t *testing.T) {
	e := New()
	if _, ok := e.Account(7); ok {
		t.Fatal("account exists before any deposit")
	}
	mustApply(t, e, Deposit(7, 1, dec("0")))
	assertAccount(t, e, 7, "0", "0", false)
}

func TestDepositValidation(t *testing.T) {
	e := New()
	mustApply(t, e, Deposit(1, 1, dec("5")))

	mustIgnore(t, e, Transaction{Kind: KindDeposit, Client: 1, TX: 2}, ReasonMissingAmount)
	mustIgnore(t, e, Deposit(1, 3, dec("-1")), ReasonNegativeAmount)
	mustIgnore(t, e, Deposit(1, 1, dec("9")), ReasonDuplicateTx)
	assertAccount(t, e, 1, "5", "0", false)
}

func TestWithdrawalRequiresFunds(t *testing.T) {
	e := New()
	mustApply(t, e, Deposit(1, 1, dec("10")))
	mustApply(t, e, Withdrawal(1, 2, dec("3")))
	assertAccount(t, e, 1, "7", "0", false)

	mustIgnore(t, e, Withdrawal(1, 3, dec("8")), ReasonInsufficientFunds)
	assertAccount(t, e, 1, "7", "0", false)
}

func TestWithdrawalNeverCreatesAccount(t *testing.T) {
	e := New()
	mustIgnore(t, e, Withdrawal(2, 99, dec("5")), ReasonUnknownAccount)
	if _, ok := e.Account(2); ok {
		t.Fatal("withdrawal created an account")
	}
	if snap := e.Snapshot(); len(snap) != 0 {
		t.Fatalf("snapshot has %d accounts, want none", len(snap))
	}
}

func TestOrderingSensitivity(t *testing.T) {
	// Deposit then withdrawal succeeds; reversed, the withdrawal hits an
	// absent account and only the deposit lands.
	e := New()
	mustApply(t, e, Deposit(1, 1, dec("10")))
	mustApply(t, e, Withdrawal(1, 2, dec("5")))
	assertAccount(t, e, 1, "5", "0", false)

	e = New()
	mustIgnore(t, e, Withdrawal(1, 2, dec("5")), ReasonUnknownAccount)
	mustApply(t, e, Deposit(1, 1, dec("10")))
	assertAccount(t, e, 1, "10", "0", false)
}

func TestDisputeLifecycle(t *testing.T) {
	e := New()
	mustApply(t, e, Deposit(1, 1, dec("10")))
	mustApply(t, e, Dispute(1, 1))
	assertAccount(t, e, 1, "0", "10", false)

	mustApply(t, e, Resolve(1, 1))
	assertAccount(t, e, 1, "10", "0", false)

	// Chargeback after resolve: the record is Resolved, not Disputed.
	mustIgnore(t, e, Chargeback(1, 1), ReasonDisputeState)
	assertAccount(t, e, 1, "10", "0", false)
}

func TestResolvedDepositCanBeDisputedAgain(t *testing.T) {
	e := New()
	mustApply(t, e, Deposit(1, 1, dec("4")))
	mustApply(t, e, Dispute(1, 1))
	mustApply(t, e, Resolve(1, 1))
	mustApply(t, e, Dispute(1, 1))
	assertAccount(t, e, 1, "0", "4", false)
}

func TestResolveIsNoOpOutsideDisputedState(t *testing.T) {
	e := New()
	mustApply(t, e, Deposit(1, 1, dec("6")))

	mustIgnore(t, e, Resolve(1, 1), ReasonDisputeState)
	assertAccount(t, e, 1, "6", "0", false)

	// A second resolve after a successful one is equally a no-op.
	mustApply(t, e, Dispute(1, 1))
	mustApply(t, e, Resolve(1, 1))
	mustIgnore(t, e, Resolve(1, 1), ReasonDisputeState)
	assertAccount(t, e, 1, "6", "0", false)
}

func TestChargebackLocksAndDrainsFunds(t *testing.T) {
	e := New()
	mustApply(t, e, Deposit(1, 1, dec("10")))
	mustApply(t, e, Dispute(1, 1))
	mustApply(t, e, Chargeback(1, 1))
	assertAccount(t, e, 1, "0", "0", true)

	// Every further event for the client is frozen out.
	mustIgnore(t, e, Deposit(1, 2, dec("5")), ReasonAccountLocked)
	mustIgnore(t, e, Withdrawal(1, 3, dec("1")), ReasonAccountLocked)
	mustIgnore(t, e, Dispute(1, 1), ReasonAccountLocked)
	mustIgnore(t, e, Resolve(1, 1), ReasonAccountLocked)
	mustIgnore(t, e, Chargeback(1, 1), ReasonAccountLocked)
	assertAccount(t, e, 1, "0", "0", true)
}

func TestChargebackOnlyAffectsDisputedAmount(t *testing.T) {
	e := New()
	mustApply(t, e, Deposit(1, 1, dec("10")))
	mustApply(t, e, Deposit(1, 2, dec("3")))
	mustApply(t, e, Dispute(1, 2))
	mustApply(t, e, Chargeback(1, 2))
	// The undisputed deposit stays; only the charged-back funds leave.
	assertAccount(t, e, 1, "10", "0", true)
}

func TestDisputeDrivesAvailableNegative(t *testing.T) {
	e := New()
	mustApply(t, e, Deposit(1, 1, dec("10")))
	mustApply(t, e, Withdrawal(1, 2, dec("8")))
	mustApply(t, e, Dispute(1, 1))
	assertAccount(t, e, 1, "-8", "10", false)

	acc, _ := e.Account(1)
	if !acc.Total.Equal(dec("2")) {
		t.Fatalf("total=%s, want 2", acc.Total)
	}
}

func TestDisputeReferenceValidation(t *testing.T) {
	e := New()
	mustApply(t, e, Deposit(1, 1, dec("10")))
	mustApply(t, e, Withdrawal(1, 2, dec("2")))
	mustApply(t, e, Deposit(2, 3, dec("1")))

	cases := []struct {
		name string
		tx   Transaction
		want Reason
	}{
		{"unknown account", Dispute(9, 1), ReasonUnknownAccount},
		{"unknown tx", Dispute(1, 99), ReasonUnknownTx},
		{"withdrawal tx", Dispute(1, 2), ReasonNotDisputable},
		{"other client's deposit", Dispute(1, 3), ReasonClientMismatch},
		{"resolve unknown tx", Resolve(1, 99), ReasonUnknownTx},
		{"chargeback withdrawal tx", Chargeback(1, 2), ReasonNotDisputable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mustIgnore(t, e, tc.tx, tc.want)
			assertAccount(t, e, 1, "8", "0", false)
			assertAccount(t, e, 2, "1", "0", false)
		})
	}
}

func TestDoubleDisputeIgnored(t *testing.T) {
	e := New()
	mustApply(t, e, Deposit(1, 1, dec("5")))
	mustApply(t, e, Dispute(1, 1))
	mustIgnore(t, e, Dispute(1, 1), ReasonDisputeState)
	assertAccount(t, e, 1, "0", "5", false)
}

func TestSnapshotOrderedByClient(t *testing.T) {
	e := New()
	mustApply(t, e, Deposit(30, 1, dec("1")))
	mustApply(t, e, Deposit(2, 2, dec("2")))
	mustApply(t, e, Deposit(117, 3, dec("3")))

	snap := e.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot has %d accounts, want 3", len(snap))
	}
	for i, want := range []uint16{2, 30, 117} {
		if snap[i].Client != want {
			t.Fatalf("snapshot[%d].Client=%d, want %d", i, snap[i].Client, want)
		}
	}
}

func TestSizeCountsLockedAccounts(t *testing.T) {
	e := New()
	mustApply(t, e, Deposit(1, 1, dec("1")))
	mustApply(t, e, Deposit(2, 2, dec("2")))
	mustApply(t, e, Dispute(2, 2))
	mustApply(t, e, Chargeback(2, 2))

	accounts, locked := e.Size()
	if accounts != 2 || locked != 1 {
		t.Fatalf("Size()=(%d,%d), want (2,1)", accounts, locked)
	}
}

func TestInvariantHoldsAcrossMixedStream(t *testing.T) {
	e := New()
	stream := []Transaction{
		Deposit(1, 1, dec("1.5")),
		Deposit(2, 2, dec("2.25")),
		Withdrawal(1, 3, dec("0.5")),
		Dispute(1, 1),
		Withdrawal(2, 4, dec("9")), // ignored: insufficient
		Resolve(1, 1),
		Dispute(2, 2),
		Chargeback(2, 2),
		Deposit(2, 5, dec("10")), // ignored: locked
	}
	for _, tx := range stream {
		e.Apply(tx)
		for _, acc := range e.Snapshot() {
			if !acc.Total.Equal(acc.Available.Add(acc.Held)) {
				t.Fatalf("after %s tx=%d: client %d total=%s available=%s held=%s",
					tx.Kind, tx.TX, acc.Client, acc.Total, acc.Available, acc.Held)
			}
			if acc.Held.IsNegative() {
				t.Fatalf("after %s tx=%d: client %d held=%s", tx.Kind, tx.TX, acc.Client, acc.Held)
			}
		}
	}
	assertAccount(t, e, 1, "2.5", "0", false)
	assertAccount(t, e, 2, "0", "0", true)
}
