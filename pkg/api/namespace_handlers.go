package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gantry/pkg/httputil"
	"github.com/platinummonkey/gantry/pkg/report"
	"github.com/platinummonkey/gantry/pkg/workflow"
)

// listNamespaces handles GET /namespaces
func (s *Server) listNamespaces(w http.ResponseWriter, r *http.Request) {
	names, err := s.records.ListNamespaceNames(r.Context())
	if err != nil {
		s.log.WithError(err).Error("failed to list namespaces")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, names)
}

// getNamespace handles GET /namespaces/{ns}
func (s *Server) getNamespace(w http.ResponseWriter, r *http.Request) {
	ns := mux.Vars(r)["ns"]

	profile, err := s.records.GetNamespace(r.Context(), ns)
	if err != nil {
		s.log.WithError(err).Error("failed to load namespace profile")
		httputil.WriteInternalError(w, err)
		return
	}
	if profile == nil {
		httputil.WriteNotFoundError(w, fmt.Sprintf("namespace %s not found", ns))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

// deleteNamespace handles DELETE /namespaces/{ns}?force=
func (s *Server) deleteNamespace(w http.ResponseWriter, r *http.Request) {
	ns := mux.Vars(r)["ns"]
	force, err := httputil.ParseQueryBool(r, "force", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := s.workflows.DeleteNamespace(r.Context(), ns, force, actor(r)); err != nil {
		var blocked *workflow.DeletionBlockedError
		if errors.As(err, &blocked) {
			httputil.WriteConflict(w, blocked.Error())
			return
		}
		s.log.WithError(err).WithField("namespace", ns).Error("namespace deletion failed")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"result": "deleted"})
}

// namespaceReport handles GET /namespaces/report
func (s *Server) namespaceReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	if err := s.report.Write(r.Context(), w); err != nil {
		// headers are already out, all we can do is log
		s.log.WithError(err).Error("failed to stream namespace report")
	}
}

func actor(r *http.Request) string {
	if user := r.Header.Get("X-Remote-User"); user != "" {
		return user
	}
	return "system"
}
