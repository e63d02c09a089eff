package httpx

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/ariefcatur/go-dairy-orders/internal/orders"
)

const (
	KindValidation        = "validation"
	KindNotFound          = "not_found"
	KindInsufficientStock = "insufficient_stock"
	KindPersistence       = "persistence"
)

type ErrorBody struct {
	Kind    string              `json:"kind"`
	Message string              `json:"message"`
	Field   string              `json:"field,omitempty"`
	Fields  []orders.FieldError `json:"fields,omitempty"`
}

type errorResp struct {
	Error ErrorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResp{ErrorBody{Kind: KindValidation, Message: msg, Field: field}})
}

// writeError maps the ledger's failures onto status codes. Storage details
// stay in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *orders.ValidationError
	switch {
	case errors.As(err, &verr):
		body := ErrorBody{Kind: KindValidation, Message: verr.Error(), Fields: verr.Fields}
		if len(verr.Fields) > 0 {
			body.Field = verr.Fields[0].Field
		}
		writeJSON(w, http.StatusBadRequest, errorResp{body})
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResp{ErrorBody{Kind: KindNotFound, Message: err.Error()}})
	case errors.Is(err, orders.ErrInsufficientStock):
		writeJSON(w, http.StatusBadRequest, errorResp{ErrorBody{Kind: KindInsufficientStock, Message: err.Error(), Field: "quantity"}})
	default:
		log.Printf("[api] %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorResp{ErrorBody{Kind: KindPersistence, Message: "storage unavailable, try again later"}})
	}
}
