package http

import (
	"net/http"
	"strings"

	"github.com/examdesk/examdesk/internal/attempt"
	auth "github.com/examdesk/examdesk/internal/auth/middleware"
	"github.com/examdesk/examdesk/internal/rbac"
)

// GET /attempts?exam_id=...&user_id=...&status=...&limit=50&offset=0
// Roles with attempt:view-all may list with any filters; everyone else has
// user_id forced to their own subject.
func ListAttemptsHandler(svc attempt.Service) http.HandlerFunc {
	checker := rbac.NewChecker(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		role := rbac.RoleFromContext(r.Context())
		sub := auth.SubjectFromContext(r.Context())

		examID := strings.TrimSpace(r.URL.Query().Get("exam_id"))
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		status := strings.TrimSpace(r.URL.Query().Get("status"))
		limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
		offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

		if !checker.Has(role, "attempt:view-all") {
			userID = sub
		}

		list, err := svc.List(r.Context(), attempt.ListOpts{
			ExamID: examID,
			UserID: userID,
			Status: status,
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			writeErr(w, err)
			return
		}
		if list == nil {
			list = []attempt.Attempt{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}
