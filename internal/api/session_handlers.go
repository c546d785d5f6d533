package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/imanmay2/sehat-server/internal/booking"
	"github.com/imanmay2/sehat-server/internal/session"
)

func joinSessionHandler(neg *session.Negotiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		sess, err := neg.Join(r.Context(), appointmentID)
		if err != nil {
			handleSessionError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSessionResponse(*sess))
	}
}

func markConnectedHandler(neg *session.Negotiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "id must be a valid UUID")
			return
		}

		if err := neg.MarkConnected(sessionID); err != nil {
			handleSessionError(w, err)
			return
		}

		sess, _ := neg.Get(sessionID)
		writeJSON(w, http.StatusOK, toSessionResponse(sess))
	}
}

func getSessionHandler(neg *session.Negotiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "id must be a valid UUID")
			return
		}

		sess, ok := neg.Get(sessionID)
		if !ok {
			writeError(w, http.StatusNotFound, "session_not_found", "no live session with that id")
			return
		}
		writeJSON(w, http.StatusOK, toSessionResponse(sess))
	}
}

func reportQualityHandler(neg *session.Negotiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "id must be a valid UUID")
			return
		}

		var req QualitySampleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		// Fire and forget by contract.
		neg.ReportQuality(sessionID, req.Sample)
		w.WriteHeader(http.StatusAccepted)
	}
}

func endSessionHandler(neg *session.Negotiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "id must be a valid UUID")
			return
		}

		reason := session.EndReasonHangup
		var req EndSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Reason != "" {
			if err := validate.Struct(req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
				return
			}
			reason = session.EndReason(req.Reason)
		}

		elapsed, err := neg.End(r.Context(), sessionID, reason)
		if err != nil {
			handleSessionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, EndSessionResponse{FinalizedSeconds: int(elapsed.Seconds())})
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// qualityFeedHandler accepts a WebSocket stream of quality samples, the
// transport the client uses for its periodic 1-5s sampling.
func qualityFeedHandler(neg *session.Negotiator, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_session_id", "id must be a valid UUID")
			return
		}
		if _, ok := neg.Get(sessionID); !ok {
			writeError(w, http.StatusNotFound, "session_not_found", "no live session with that id")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("quality feed upgrade failed")
			return
		}
		defer conn.Close()

		for {
			var req QualitySampleRequest
			if err := conn.ReadJSON(&req); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Debug().Err(err).Str("session_id", sessionID.String()).Msg("quality feed closed")
				}
				return
			}
			if req.Sample < 0 || req.Sample > 1 {
				continue
			}

			neg.ReportQuality(sessionID, req.Sample)

			sess, ok := neg.Get(sessionID)
			if !ok {
				// Session ended (degraded timeout or remote hangup).
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"), time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteJSON(toSessionResponse(sess)); err != nil {
				return
			}
		}
	}
}

func handleSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotConfirmed):
		writeError(w, http.StatusConflict, "appointment_not_confirmed", err.Error())
	case errors.Is(err, session.ErrNoConnectivity):
		writeError(w, http.StatusServiceUnavailable, "no_connectivity", err.Error())
	case errors.Is(err, session.ErrInPersonVisit):
		writeError(w, http.StatusUnprocessableEntity, "in_person_visit", err.Error())
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, session.ErrSessionEnded):
		writeError(w, http.StatusConflict, "session_ended", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
