package server

import (
	"encoding/json"
	"net/http"

	"TradeStore/internal/trade"
)

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorBody{Error: code, Detail: detail})
}

// writeRejection maps the rejection taxonomy onto HTTP statuses: version
// conflicts are 409, everything else the client can fix is 400.
func writeRejection(w http.ResponseWriter, rej *trade.RejectionError) {
	status := http.StatusBadRequest
	if rej.Reason == trade.RejectVersionTooLow {
		status = http.StatusConflict
	}
	writeJSON(w, status, errorBody{
		Error:  "trade_rejected",
		Reason: string(rej.Reason),
		Detail: rej.Detail,
	})
}
