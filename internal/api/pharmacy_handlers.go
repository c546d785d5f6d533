package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/imanmay2/sehat-server/internal/pharmacy"
)

func listStockHandler(svc *pharmacy.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pharmacyID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_pharmacy_id", "id must be a valid UUID")
			return
		}

		items, err := svc.ListStock(r.Context(), pharmacyID)
		if err != nil {
			handlePharmacyError(w, err)
			return
		}

		out := make([]StockItemResponse, 0, len(items))
		for _, item := range items {
			out = append(out, StockItemResponse{
				Medicine:  item.Medicine,
				Quantity:  item.Quantity,
				UpdatedAt: item.UpdatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func updateStockHandler(svc *pharmacy.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pharmacyID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_pharmacy_id", "id must be a valid UUID")
			return
		}

		var req StockUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		if err := svc.UpdateStock(r.Context(), pharmacyID, req.Medicine, req.Quantity); err != nil {
			handlePharmacyError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func findMedicineHandler(svc *pharmacy.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		medicine := chi.URLParam(r, "medicine")
		if medicine == "" {
			writeError(w, http.StatusBadRequest, "invalid_medicine", "medicine name is required")
			return
		}

		lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
		lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
		if errLat != nil || errLng != nil {
			writeError(w, http.StatusBadRequest, "invalid_location", "lat and lng are required")
			return
		}

		limit := intQueryParam(r, "limit", 10)

		results, err := svc.FindNearby(r.Context(), medicine, lat, lng, limit)
		if err != nil {
			handlePharmacyError(w, err)
			return
		}

		out := make([]StockedPharmacyResponse, 0, len(results))
		for _, res := range results {
			out = append(out, StockedPharmacyResponse{
				ID:         res.Pharmacy.ID,
				Name:       res.Pharmacy.Name,
				Address:    res.Pharmacy.Address,
				Quantity:   res.Quantity,
				DistanceKm: res.DistanceKm,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handlePharmacyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pharmacy.ErrPharmacyNotFound):
		writeError(w, http.StatusNotFound, "pharmacy_not_found", err.Error())
	case errors.Is(err, pharmacy.ErrNegativeQuantity):
		writeError(w, http.StatusBadRequest, "negative_quantity", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
