package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/gantry/pkg/feed"
	"github.com/platinummonkey/gantry/pkg/httputil"
)

// syncEntity handles PUT /feed/{entity} and PUT /feed/{entity}/{id}
func (s *Server) syncEntity(w http.ResponseWriter, r *http.Request) {
	entity := mux.Vars(r)["entity"]

	var payload map[string]interface{}
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}

	id := mux.Vars(r)["id"]
	if id == "" {
		id, _ = payload["id"].(string)
	}
	if id == "" {
		httputil.WriteBadRequest(w, "a string id is required")
		return
	}

	result, err := s.engine.Sync(r.Context(), entity, id, payload)
	if err != nil {
		s.writeFeedError(w, err)
		return
	}
	httputil.WriteJSON(w, result.Status, result)
}

// deleteEntity handles DELETE /feed/{entity}/{id}
func (s *Server) deleteEntity(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	result, err := s.engine.Delete(r.Context(), vars["entity"], vars["id"])
	if err != nil {
		s.writeFeedError(w, err)
		return
	}
	httputil.WriteJSON(w, result.Status, result)
}

// publishContent handles PUT /namespaces/{ns}/contents, reconciling a
// Content record through the same engine the feed uses.
func (s *Server) publishContent(w http.ResponseWriter, r *http.Request) {
	ns := mux.Vars(r)["ns"]

	var payload map[string]interface{}
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	externalLink, _ := payload["externalLink"].(string)
	if externalLink == "" {
		httputil.WriteBadRequest(w, "externalLink is required")
		return
	}
	payload["namespace"] = ns

	result, err := s.engine.Sync(r.Context(), "Content", externalLink, payload)
	if err != nil {
		s.writeFeedError(w, err)
		return
	}
	httputil.WriteJSON(w, result.Status, result)
}

// writeFeedError maps precondition violations to 400s and keeps internal
// detail out of everything else.
func (s *Server) writeFeedError(w http.ResponseWriter, err error) {
	var unknown *feed.UnknownEntityError
	var childOnly *feed.ChildOnlyError
	switch {
	case errors.As(err, &unknown), errors.As(err, &childOnly):
		httputil.WriteError(w, http.StatusBadRequest, err)
	default:
		s.log.WithError(err).Error("feed sync failed")
		httputil.WriteInternalError(w, err)
	}
}
