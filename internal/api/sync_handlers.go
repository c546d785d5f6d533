package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/imanmay2/sehat-server/internal/connectivity"
	"github.com/imanmay2/sehat-server/internal/syncqueue"
)

func connectivityHandler(conn connectivity.Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := conn.Current()
		writeJSON(w, http.StatusOK, ConnectivityResponse{
			State: string(snap.State),
			Since: snap.Since,
		})
	}
}

func enqueueMutationHandler(queue *syncqueue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EnqueueMutationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		m, err := queue.Enqueue(r.Context(), syncqueue.Kind(req.Kind), req.Payload, req.IdempotencyKey)
		if err != nil {
			if errors.Is(err, syncqueue.ErrUnknownMutationKind) {
				writeError(w, http.StatusBadRequest, "unknown_mutation_kind", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusAccepted, toMutationResponse(m))
	}
}

func flushQueueHandler(queue *syncqueue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcomes, err := queue.Flush(r.Context())
		if err != nil && errors.Is(err, syncqueue.ErrOffline) {
			writeError(w, http.StatusServiceUnavailable, "offline", err.Error())
			return
		}

		out := make([]FlushOutcomeResponse, 0, len(outcomes))
		for _, o := range outcomes {
			resp := FlushOutcomeResponse{
				Mutation: toMutationResponse(o.Mutation),
				Applied:  o.Err == nil,
			}
			if o.Err != nil {
				resp.Error = o.Err.Error()
			}
			out = append(out, resp)
		}

		// A timeout mid-flush still reports the outcomes achieved so far.
		status := http.StatusOK
		if err != nil {
			status = http.StatusAccepted
		}
		writeJSON(w, status, out)
	}
}

func listPendingMutationsHandler(queue *syncqueue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := queue.Pending(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		out := make([]MutationResponse, 0, len(pending))
		for _, m := range pending {
			out = append(out, toMutationResponse(m))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func listDeadLettersHandler(queue *syncqueue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		letters, err := queue.DeadLetters(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		out := make([]DeadLetterResponse, 0, len(letters))
		for _, d := range letters {
			out = append(out, DeadLetterResponse{
				Mutation: toMutationResponse(d.Mutation),
				Reason:   d.Reason,
				FailedAt: d.FailedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}
