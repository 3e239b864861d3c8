package server

import (
	"net/http"

	"soniclibrary/pkg/domain"
)

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	recs, err := s.app.Recommend(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, recs)
}

func (s *Server) handleRecommendationGraph(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	graph, err := s.app.BuildGraph(user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, graph)
}
