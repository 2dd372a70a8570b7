package httpapi

import (
	"net/http"
	"time"

	"gtipricing/backend/internal/domain"
)

const partialSourceMessage = "Some discount sources were unavailable; prices exclude them"

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handlePriceBasket(w http.ResponseWriter, r *http.Request) {
	var req domain.PriceBasketRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	result, err := a.service.PriceBasket(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: result, Message: sourceMessage(result.SourceFailures)})
}

func (a *API) handleValidateDiscounts(w http.ResponseWriter, r *http.Request) {
	var req domain.ValidateDiscountRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.ValidateDiscounts(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: resp, Message: sourceMessage(resp.SourceFailures)})
}

func (a *API) handleDiscountSummary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := a.service.DiscountSummary(r.Context(), query.Get("customerId"), query.Get("market"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: resp, Message: sourceMessage(resp.SourceFailures)})
}

func sourceMessage(failures []string) string {
	if len(failures) == 0 {
		return ""
	}
	return partialSourceMessage
}
