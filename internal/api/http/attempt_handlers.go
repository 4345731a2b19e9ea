package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/examdesk/examdesk/internal/attempt"
	auth "github.com/examdesk/examdesk/internal/auth/middleware"
	syncx "github.com/examdesk/examdesk/internal/sync"
)

// StartAttemptHandler creates an attempt for the authenticated subject. The
// response carries the sampled questions without any correctness information.
func StartAttemptHandler(svc attempt.Service, events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := auth.SubjectFromContext(r.Context())

		var req struct {
			ExamID string `json:"exam_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request", "detail": "bad json"})
			return
		}
		if req.ExamID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request", "detail": "exam_id required"})
			return
		}

		res, err := svc.Start(r.Context(), sub, req.ExamID)
		if err != nil {
			writeErr(w, err)
			return
		}

		if events != nil {
			data, _ := json.Marshal(map[string]string{"exam_id": req.ExamID, "user_id": sub})
			if err := events.Append(r.Context(), syncx.Event{
				Type: syncx.TypeAttemptStarted, Key: res.AttemptID, DataJSON: string(data),
			}); err != nil {
				log.Printf("event log append failed: %v", err)
			}
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// SubmitAttemptHandler grades the attempt. Re-submission of any kind, retry
// or race, surfaces as attempt_not_active with no second grading.
func SubmitAttemptHandler(svc attempt.Service, events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := auth.SubjectFromContext(r.Context())
		id := chi.URLParam(r, "attemptID")

		var req struct {
			Answers map[string][]string `json:"answers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request", "detail": "bad json"})
			return
		}

		res, err := svc.Submit(r.Context(), id, sub, req.Answers)
		if err != nil {
			writeErr(w, err)
			return
		}

		if events != nil {
			data, _ := json.Marshal(res)
			if err := events.Append(r.Context(), syncx.Event{
				Type: syncx.TypeAttemptSubmitted, Key: res.AttemptID, DataJSON: string(data),
			}); err != nil {
				log.Printf("event log append failed: %v", err)
			}
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// AttemptResultHandler returns the hydrated result view for a completed
// attempt owned by the subject.
func AttemptResultHandler(svc attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := auth.SubjectFromContext(r.Context())
		id := chi.URLParam(r, "attemptID")

		res, err := svc.Result(r.Context(), id, sub)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
