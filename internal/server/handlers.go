package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"TradeStore/internal/ingest"
	"TradeStore/internal/repair"
	"TradeStore/internal/trade"
)

type handlers struct {
	ingest *ingest.Service
	repair *repair.Service
	log    zerolog.Logger
}

// ingestTrade handles POST /api/trades: the create-or-update operation.
// 201 for a persisted row, 409 for a version rejection, 400 for maturity
// or malformed rejections, 503 for store/sequencer failures.
func (h *handlers) ingestTrade(w http.ResponseWriter, r *http.Request) {
	var u trade.Update
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	persisted, err := h.ingest.IngestTrade(r.Context(), u)
	if err != nil {
		if rej, ok := trade.AsRejection(err); ok {
			writeRejection(w, rej)
			return
		}
		h.log.Error().Err(err).Str("trade_id", u.TradeID).Msg("ingest failed")
		writeError(w, http.StatusServiceUnavailable, "storage_failure", "trade could not be persisted")
		return
	}

	writeJSON(w, http.StatusCreated, persisted)
}

func (h *handlers) getTrade(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := h.ingest.Find(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("trade_id", id).Msg("trade lookup failed")
		writeError(w, http.StatusServiceUnavailable, "storage_failure", "")
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "not_found", "")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	recs, err := h.ingest.History(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("trade_id", id).Msg("history lookup failed")
		writeError(w, http.StatusServiceUnavailable, "storage_failure", "")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handlers) getMaxVersion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	v, err := h.ingest.QueryMaxVersion(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("trade_id", id).Msg("max-version lookup failed")
		writeError(w, http.StatusServiceUnavailable, "storage_failure", "")
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "not_found", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"maxVersion": *v})
}

func (h *handlers) listFailed(w http.ResponseWriter, r *http.Request) {
	fts, err := h.repair.ListFailed(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage_failure", "")
		return
	}
	writeJSON(w, http.StatusOK, fts)
}

func (h *handlers) getFailed(w http.ResponseWriter, r *http.Request) {
	ft, err := h.repair.GetFailed(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage_failure", "")
		return
	}
	if ft == nil {
		writeError(w, http.StatusNotFound, "not_found", "")
		return
	}
	writeJSON(w, http.StatusOK, ft)
}

func (h *handlers) resubmit(w http.ResponseWriter, r *http.Request) {
	persisted, err := h.repair.Resubmit(r.Context(), r.PathValue("id"))
	if err != nil {
		if rej, ok := trade.AsRejection(err); ok {
			writeRejection(w, rej)
			return
		}
		writeError(w, http.StatusConflict, "resubmit_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, persisted)
}
