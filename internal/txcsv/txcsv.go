// Package txcsv adapts CSV input and output to the engine. It carries no
// domain logic: malformed rows are reported to the caller, which skips them,
// and the engine decides everything else.
package txcsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"payflux.org/internal/engine"
)

// ErrRow marks a recoverable per-row error: the row is unusable but the
// stream can continue with the next one.
var ErrRow = errors.New("invalid row")

// Reader yields transactions from CSV input with the columns
// type,client,tx,amount. Whitespace around fields is tolerated, the header
// row is optional, and the amount column may be absent or empty for
// dispute-lifecycle rows.
type Reader struct {
	cr     *csv.Reader
	line   int
	header bool
}

// NewReader wraps r in a transaction reader.
func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return &Reader{cr: cr}
}

// Next returns the next transaction, io.EOF at end of input, or an error
// wrapping ErrRow for a row that should be skipped. Any other error means the
// input itself is broken and the stream must stop.
func (r *Reader) Next() (engine.Transaction, error) {
	for {
		record, err := r.cr.Read()
		if err == io.EOF {
			return engine.Transaction{}, io.EOF
		}
		r.line++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return engine.Transaction{}, fmt.Errorf("line %d: %w: %v", r.line, ErrRow, err)
			}
			return engine.Transaction{}, err
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		if !r.header && r.line == 1 && len(record) > 0 && record[0] == "type" {
			r.header = true
			continue
		}
		tx, err := parseRecord(record)
		if err != nil {
			return engine.Transaction{}, fmt.Errorf("line %d: %w: %v", r.line, ErrRow, err)
		}
		return tx, nil
	}
}

func parseRecord(record []string) (engine.Transaction, error) {
	if len(record) < 3 || len(record) > 4 {
		return engine.Transaction{}, fmt.Errorf("expected 3 or 4 fields, got %d", len(record))
	}
	kind, err := engine.ParseKind(record[0])
	if err != nil {
		return engine.Transaction{}, err
	}
	client, err := strconv.ParseUint(record[1], 10, 16)
	if err != nil {
		return engine.Transaction{}, fmt.Errorf("client %q: %v", record[1], err)
	}
	txID, err := strconv.ParseUint(record[2], 10, 32)
	if err != nil {
		return engine.Transaction{}, fmt.Errorf("tx %q: %v", record[2], err)
	}
	tx := engine.Transaction{Kind: kind, Client: uint16(client), TX: uint32(txID)}
	if len(record) == 4 && record[3] != "" {
		amount, err := decimal.NewFromString(record[3])
		if err != nil {
			return engine.Transaction{}, fmt.Errorf("amount %q: %v", record[3], err)
		}
		tx.Amount = amount
		tx.HasAmount = true
	}
	return tx, nil
}

// WriteSnapshot serializes accounts as CSV with the columns
// client,available,held,total,locked.
func WriteSnapshot(w io.Writer, accounts []engine.Account) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"client", "available", "held", "total", "locked"}); err != nil {
		return err
	}
	for _, acc := range accounts {
		record := []string{
			strconv.FormatUint(uint64(acc.Client), 10),
			acc.Available.String(),
			acc.Held.String(),
			acc.Total.String(),
			strconv.FormatBool(acc.Locked),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
