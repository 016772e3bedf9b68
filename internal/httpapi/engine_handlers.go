package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"payflux.org/internal/audit"
	"payflux.org/internal/engine"
	"payflux.org/internal/ids"
	"payflux.org/internal/obs"
	"payflux.org/internal/store/pg"
	"payflux.org/internal/txcsv"
)

type transactionRequest struct {
	Type   string           `json:"type"`
	Client uint16           `json:"client"`
	TX     uint32           `json:"tx"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

type outcomeResponse struct {
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

type snapshotResponse struct {
	Items []engine.Account `json:"items"`
	AsOf  time.Time        `json:"as_of"`
}

type runResponse struct {
	RunID       string           `json:"run_id,omitempty"`
	Processed   int              `json:"processed"`
	Applied     int              `json:"applied"`
	Ignored     int              `json:"ignored"`
	SkippedRows int              `json:"skipped_rows"`
	Accounts    []engine.Account `json:"accounts"`
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.applyTransaction(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handleAccountsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listAccounts(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	if path == "" || strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	client, err := strconv.ParseUint(path, 10, 16)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "client must be an unsigned 16-bit integer")
		return
	}
	a.getAccount(w, r, uint16(client))
}

func (a *API) handleRunsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.processRun(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost)
	}
}

func (a *API) handleRunResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	a.getRun(w, r, id)
}

func (a *API) applyTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	kind, err := engine.ParseKind(strings.ToLower(strings.TrimSpace(req.Type)))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tx := engine.Transaction{Kind: kind, Client: req.Client, TX: req.TX}
	if req.Amount != nil {
		tx.Amount = *req.Amount
		tx.HasAmount = true
	}

	a.mu.Lock()
	out := a.eng.Apply(tx)
	accounts, locked := a.eng.Size()
	a.mu.Unlock()

	obs.ObserveOutcome(tx, out)
	obs.SetAccountTotals(accounts, locked)
	audit.LogOutcome(r.Context(), tx, out)

	resp := outcomeResponse{Applied: out.Applied, Reason: string(out.Reason)}
	writeJSON(w, http.StatusAccepted, resp)
}

func (a *API) listAccounts(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	items := a.eng.Snapshot()
	a.mu.Unlock()

	writeJSON(w, http.StatusOK, snapshotResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) getAccount(w http.ResponseWriter, r *http.Request, client uint16) {
	a.mu.Lock()
	acc, ok := a.eng.Account(client)
	a.mu.Unlock()
	if !ok {
		writeError(w, r, http.StatusNotFound, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// processRun executes an uploaded CSV stream on a fresh engine and, when a
// run store is configured, persists the resulting snapshot under a new run id.
func (a *API) processRun(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	eng := engine.New()
	reader := txcsv.NewReader(r.Body)
	var resp runResponse
	for {
		tx, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, txcsv.ErrRow) {
				resp.SkippedRows++
				continue
			}
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		resp.Processed++
		out := eng.Apply(tx)
		obs.ObserveOutcome(tx, out)
		if out.Applied {
			resp.Applied++
		} else {
			resp.Ignored++
			audit.LogOutcome(r.Context(), tx, out)
		}
	}
	resp.Accounts = eng.Snapshot()

	if a.runs != nil {
		runID := ids.NewRunID()
		if err := a.runs.SaveRun(r.Context(), runID, resp.Accounts); err != nil {
			writeError(w, r, http.StatusInternalServerError, "persist run: "+err.Error())
			return
		}
		resp.RunID = runID
	}

	_ = audit.LogEvent(r.Context(), "engine.run.complete", map[string]any{
		"run_id":       resp.RunID,
		"processed":    resp.Processed,
		"applied":      resp.Applied,
		"ignored":      resp.Ignored,
		"skipped_rows": resp.SkippedRows,
		"accounts":     len(resp.Accounts),
	})
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) getRun(w http.ResponseWriter, r *http.Request, id string) {
	if a.runs == nil {
		writeError(w, r, http.StatusServiceUnavailable, "run storage is not configured")
		return
	}
	accounts, err := a.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, pg.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   id,
		"accounts": accounts,
	})
}
