package api

import (
	"net/http"

	"agiletools/pkg/types"
)

type WheelConfigRequest struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

type WheelResultRequest struct {
	ConfigID     string `json:"config_id"`
	SelectedItem string `json:"selected_item"`
}

type WheelConfigsResponse struct {
	Configs []*types.WheelConfig `json:"configs"`
}

type WheelResultsResponse struct {
	Results []*types.WheelResult `json:"results"`
}

func (s *Server) createWheelConfig(w http.ResponseWriter, r *http.Request) {
	username, err := identity(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	var req WheelConfigRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.sendError(w, r, err)
		return
	}

	config, err := s.wheel.CreateConfig(r.Context(), username, req.Name, req.Items)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, config)
}

// GET /wheel/configs - the caller's own configurations
func (s *Server) listWheelConfigs(w http.ResponseWriter, r *http.Request) {
	username, err := identity(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	configs, err := s.wheel.ListConfigs(r.Context(), username)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	if configs == nil {
		configs = []*types.WheelConfig{}
	}
	s.writeJSON(w, http.StatusOK, WheelConfigsResponse{Configs: configs})
}

func (s *Server) getWheelConfig(w http.ResponseWriter, r *http.Request) {
	if _, err := identity(r); err != nil {
		s.sendError(w, r, err)
		return
	}

	config, err := s.wheel.GetConfig(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, config)
}

func (s *Server) updateWheelConfig(w http.ResponseWriter, r *http.Request) {
	username, err := identity(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	var req WheelConfigRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.sendError(w, r, err)
		return
	}

	config, err := s.wheel.UpdateConfig(r.Context(), username, r.PathValue("id"), req.Name, req.Items)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, config)
}

func (s *Server) deleteWheelConfig(w http.ResponseWriter, r *http.Request) {
	username, err := identity(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	if err := s.wheel.DeleteConfig(r.Context(), username, r.PathValue("id")); err != nil {
		s.sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /wheel/configs/{id}/spin - server-side selection, recorded in the result log
func (s *Server) spinWheel(w http.ResponseWriter, r *http.Request) {
	if _, err := identity(r); err != nil {
		s.sendError(w, r, err)
		return
	}

	result, err := s.wheel.Spin(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

// POST /wheel/results - records a spin the client performed itself
func (s *Server) recordWheelResult(w http.ResponseWriter, r *http.Request) {
	if _, err := identity(r); err != nil {
		s.sendError(w, r, err)
		return
	}
	var req WheelResultRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.sendError(w, r, err)
		return
	}

	result, err := s.wheel.RecordResult(r.Context(), req.ConfigID, req.SelectedItem)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

func (s *Server) listWheelResults(w http.ResponseWriter, r *http.Request) {
	if _, err := identity(r); err != nil {
		s.sendError(w, r, err)
		return
	}

	results, err := s.wheel.Results(r.Context(), r.PathValue("id"))
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	if results == nil {
		results = []*types.WheelResult{}
	}
	s.writeJSON(w, http.StatusOK, WheelResultsResponse{Results: results})
}
