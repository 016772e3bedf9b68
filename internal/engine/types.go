package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind enumerates the five transaction record kinds.
type Kind uint8

const (
	KindDeposit Kind = iota
	KindWithdrawal
	KindDispute
	KindResolve
	KindChargeback
)

var kindNames = [...]string{"deposit", "withdrawal", "dispute", "resolve", "chargeback"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a lowercase wire name to its Kind.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if s == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown transaction type %q", s)
}

// Transaction is one record of the input stream. Amount carries a value only
// for deposits and withdrawals; HasAmount distinguishes an absent amount from
// an explicit zero.
type Transaction struct {
	Kind      Kind
	Client    uint16
	TX        uint32
	Amount    decimal.Decimal
	HasAmount bool
}

// Deposit builds a deposit record.
func Deposit(client uint16, tx uint32, amount decimal.Decimal) Transaction {
	return Transaction{Kind: KindDeposit, Client: client, TX: tx, Amount: amount, HasAmount: true}
}

// Withdrawal builds a withdrawal record.
func Withdrawal(client uint16, tx uint32, amount decimal.Decimal) Transaction {
	return Transaction{Kind: KindWithdrawal, Client: client, TX: tx, Amount: amount, HasAmount: true}
}

// Dispute builds a dispute record referencing an earlier deposit.
func Dispute(client uint16, tx uint32) Transaction {
	return Transaction{Kind: KindDispute, Client: client, TX: tx}
}

// Resolve builds a resolve record referencing a disputed deposit.
func Resolve(client uint16, tx uint32) Transaction {
	return Transaction{Kind: KindResolve, Client: client, TX: tx}
}

// Chargeback builds a chargeback record referencing a disputed deposit.
func Chargeback(client uint16, tx uint32) Transaction {
	return Transaction{Kind: KindChargeback, Client: client, TX: tx}
}

// Account is the reported state of one client: what is spendable, what is
// frozen pending disputes, and whether a chargeback froze the account.
// Total is always Available + Held.
type Account struct {
	Client    uint16          `json:"client"`
	Available decimal.Decimal `json:"available"`
	Held      decimal.Decimal `json:"held"`
	Total     decimal.Decimal `json:"total"`
	Locked    bool            `json:"locked"`
}

// Reason classifies why an event was ignored. Values double as metric labels.
type Reason string

const (
	ReasonUnknownAccount    Reason = "unknown_account"
	ReasonUnknownTx         Reason = "unknown_transaction"
	ReasonDuplicateTx       Reason = "duplicate_transaction"
	ReasonNotDisputable     Reason = "not_disputable"
	ReasonInsufficientFunds Reason = "insufficient_funds"
	ReasonAccountLocked     Reason = "account_locked"
	ReasonDisputeState      Reason = "dispute_state"
	ReasonClientMismatch    Reason = "client_mismatch"
	ReasonMissingAmount     Reason = "missing_amount"
	ReasonNegativeAmount    Reason = "negative_amount"
)

// Outcome reports the fate of a single Apply call. Ignored events have no
// observable effect on any account; the reason exists for audit and metrics.
type Outcome struct {
	Applied bool
	Reason  Reason
}

var applied = Outcome{Applied: true}

func ignored(r Reason) Outcome { return Outcome{Reason: r} }
