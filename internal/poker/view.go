package poker

import (
	"sort"
	"time"

	"agiletools/pkg/types"
)

// HiddenVote replaces vote values other viewers may not see yet.
const HiddenVote = "hidden"

// SessionView is the snapshot a client renders after every event.
type SessionView struct {
	SessionCode   string            `json:"session_code"`
	Title         string            `json:"title"`
	Description   string            `json:"description,omitempty"`
	Creator       string            `json:"creator"`
	Status        string            `json:"status"`
	IsFacilitator bool              `json:"is_facilitator"`
	Participants  []ParticipantView `json:"participants"`
	CurrentRound  *RoundView        `json:"current_round"`
	IsRevealed    bool              `json:"is_revealed"`
	RoundsHistory []RoundView       `json:"rounds_history"`
	Stats         *VoteStats        `json:"stats,omitempty"`
	Deck          []string          `json:"deck"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// ParticipantView is one row of the participant list.
type ParticipantView struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	HasVoted  bool      `json:"has_voted"`
	Connected bool      `json:"connected"`
	JoinedAt  time.Time `json:"joined_at"`
}

// RoundView is a round as seen by one viewer.
type RoundView struct {
	RoundNumber   int        `json:"round_number"`
	StoryTitle    string     `json:"story_title"`
	Votes         []VoteView `json:"votes,omitempty"`
	VoteCount     int        `json:"vote_count"`
	FinalEstimate *string    `json:"final_estimate,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// VoteView is a vote whose value may be masked.
type VoteView struct {
	Username string    `json:"username"`
	Value    string    `json:"value"`
	VotedAt  time.Time `json:"voted_at"`
}

// Presence reports whether a user has a live stream connection.
type Presence func(username string) bool

// View projects s for viewer. Before reveal only the viewer's own vote value
// is visible; inactive participants are omitted.
func (m *Machine) View(s *types.Session, viewer string, online Presence) SessionView {
	view := SessionView{
		SessionCode:   s.Code,
		Title:         s.Title,
		Description:   s.Description,
		Creator:       s.Creator,
		Status:        s.Status,
		IsFacilitator: s.IsFacilitator(viewer),
		IsRevealed:    s.IsRevealed,
		Deck:          m.deck.Cards(),
		RoundsHistory: make([]RoundView, 0, len(s.RoundsHistory)),
		Participants:  make([]ParticipantView, 0, len(s.Participants)),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		CompletedAt:   s.CompletedAt,
	}

	for _, p := range s.SortedParticipants() {
		if !p.Active {
			continue
		}
		pv := ParticipantView{Username: p.Username, Role: p.Role, JoinedAt: p.JoinedAt}
		if s.CurrentRound != nil {
			_, pv.HasVoted = s.CurrentRound.Votes[p.Username]
		}
		if online != nil {
			pv.Connected = online(p.Username)
		}
		view.Participants = append(view.Participants, pv)
	}

	if r := s.CurrentRound; r != nil {
		rv := roundView(r)
		rv.Votes = make([]VoteView, 0, len(r.Votes))
		for _, v := range r.Votes {
			value := v.Value
			if !s.IsRevealed && v.User != viewer {
				value = HiddenVote
			}
			rv.Votes = append(rv.Votes, VoteView{Username: v.User, Value: value, VotedAt: v.VotedAt})
		}
		sort.Slice(rv.Votes, func(i, j int) bool { return rv.Votes[i].Username < rv.Votes[j].Username })
		view.CurrentRound = &rv

		if s.IsRevealed {
			stats := ComputeStats(r.Votes)
			view.Stats = &stats
		}
	}

	for _, r := range s.RoundsHistory {
		view.RoundsHistory = append(view.RoundsHistory, roundView(r))
	}
	return view
}

func roundView(r *types.Round) RoundView {
	return RoundView{
		RoundNumber:   r.Number,
		StoryTitle:    r.StoryTitle,
		VoteCount:     len(r.Votes),
		FinalEstimate: r.FinalEstimate,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
	}
}
