// payflux-smoke drives a canned dispute scenario through the engine and
// verifies the resulting balances, as a quick sanity check of a build.
package main

import (
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"payflux.org/internal/engine"
)

func main() {
	log.SetFlags(0)

	eng := engine.New()
	stream := []engine.Transaction{
		engine.Deposit(1, 1, dec("15.5")),
		engine.Withdrawal(1, 2, dec("5.0")),
		engine.Deposit(2, 3, dec("9.5")),
		engine.Dispute(2, 3),
		engine.Chargeback(2, 3),
		engine.Deposit(2, 4, dec("1")), // locked, must be ignored
	}
	for _, tx := range stream {
		out := eng.Apply(tx)
		if tx.TX == 4 && out.Applied {
			log.Fatal("deposit on locked account was applied")
		}
	}

	for _, acc := range eng.Snapshot() {
		if !acc.Total.Equal(acc.Available.Add(acc.Held)) {
			log.Fatalf("client %d: total %s != available %s + held %s",
				acc.Client, acc.Total, acc.Available, acc.Held)
		}
	}

	check(eng, 1, "10.5", false)
	check(eng, 2, "0", true)

	fmt.Println("engine smoke test passed")
}

func check(eng *engine.Engine, client uint16, total string, locked bool) {
	acc, ok := eng.Account(client)
	if !ok {
		log.Fatalf("client %d missing", client)
	}
	if !acc.Total.Equal(dec(total)) {
		log.Fatalf("client %d total=%s, want %s", client, acc.Total, total)
	}
	if acc.Locked != locked {
		log.Fatalf("client %d locked=%v, want %v", client, acc.Locked, locked)
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
