package api

import (
	"net/http"
	"strconv"

	"agiletools/internal/poker"
	"agiletools/pkg/interfaces"
	"agiletools/pkg/types"
)

type CreateSessionRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type VoteRequest struct {
	VoteValue string `json:"vote_value"`
}

type StartRoundRequest struct {
	StoryTitle string `json:"story_title"`
}

type CompleteRoundRequest struct {
	FinalEstimate string `json:"final_estimate"`
}

type ListSessionsResponse struct {
	Sessions []types.SessionSummary `json:"sessions"`
}

type DeckResponse struct {
	Cards []string `json:"cards"`
}

// FUNCTIONAL DISCOVERY: POST /poker/sessions - caller becomes the facilitator
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	username, err := identity(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	var req CreateSessionRequest
	if err := decodeBody(r, &req, true); err != nil {
		s.sendError(w, r, err)
		return
	}

	session, err := s.sessions.CreateSession(r.Context(), req.Title, req.Description, username)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, s.machine.View(session, username, s.presence(session.Code)))
}

// GET /poker/sessions - sessions created by the caller, newest first
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	username, err := identity(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	summaries, err := s.sessions.ListSessionsByCreator(r.Context(), username)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []types.SessionSummary{}
	}
	s.writeJSON(w, http.StatusOK, ListSessionsResponse{Sessions: summaries})
}

// GET /poker/sessions/{code} - snapshot projected for the caller
// FUNCTIONAL DISCOVERY: Reading never joins; clients call /join explicitly or open the stream
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	username, err := identity(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	code := r.PathValue("code")
	session, err := s.sessions.GetSession(r.Context(), code)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.machine.View(session, username, s.presence(code)))
}

func (s *Server) joinSession(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, func(username string) (interfaces.Transition, error) {
		return s.machine.Join(username), nil
	})
}

func (s *Server) leaveSession(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, func(username string) (interfaces.Transition, error) {
		return s.machine.Leave(username), nil
	})
}

func (s *Server) castVote(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, func(username string) (interfaces.Transition, error) {
		var req VoteRequest
		if err := decodeBody(r, &req, true); err != nil {
			return nil, err
		}
		return s.machine.CastVote(username, req.VoteValue), nil
	})
}

func (s *Server) revealVotes(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, func(username string) (interfaces.Transition, error) {
		return s.machine.Reveal(username), nil
	})
}

func (s *Server) resetVotes(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, func(username string) (interfaces.Transition, error) {
		return s.machine.ResetVotes(username), nil
	})
}

// startRound accepts an empty body; a blank story title gets the default name
func (s *Server) startRound(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, func(username string) (interfaces.Transition, error) {
		var req StartRoundRequest
		if err := decodeBody(r, &req, false); err != nil {
			return nil, err
		}
		return s.machine.StartRound(username, req.StoryTitle), nil
	})
}

func (s *Server) completeRound(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, func(username string) (interfaces.Transition, error) {
		number, err := strconv.Atoi(r.PathValue("round_number"))
		if err != nil {
			return nil, badRequest(err)
		}
		var req CompleteRoundRequest
		if err := decodeBody(r, &req, true); err != nil {
			return nil, err
		}
		return s.machine.CompleteRound(username, number, req.FinalEstimate), nil
	})
}

func (s *Server) completeSession(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, func(username string) (interfaces.Transition, error) {
		return s.machine.CompleteSession(username), nil
	})
}

// GET /poker/deck - the cards votes are validated against
func (s *Server) getDeck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, DeckResponse{Cards: s.machine.Deck().Cards()})
}

// apply runs one transition for the caller and answers with the caller's snapshot
// ARCHITECTURAL DISCOVERY: Every mutating endpoint funnels through SessionManager.Apply,
// which persists and publishes before the response is written
func (s *Server) apply(w http.ResponseWriter, r *http.Request, build func(username string) (interfaces.Transition, error)) {
	username, err := identity(r)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	transition, err := build(username)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	code := r.PathValue("code")
	session, _, err := s.sessions.Apply(r.Context(), code, transition)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.machine.View(session, username, s.presence(code)))
}

func (s *Server) presence(code string) poker.Presence {
	return func(username string) bool {
		return s.registry != nil && s.registry.IsConnected(code, username)
	}
}
