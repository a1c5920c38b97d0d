package types

import (
	"sort"
	"time"
)

// Participant roles
const (
	RoleFacilitator = "facilitator"
	RoleVoter       = "voter"
)

// Session status values
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
)

// ARCHITECTURAL DISCOVERY: Event type tags are the whole stream contract.
// Clients re-fetch the session snapshot on receipt, so events never carry vote values.
const (
	EventUserJoined       = "user_joined"
	EventUserLeft         = "user_left"
	EventNewRound         = "new_round"
	EventVoteCast         = "vote_cast"
	EventVotesRevealed    = "votes_revealed"
	EventVotesReset       = "votes_reset"
	EventRoundCompleted   = "round_completed"
	EventSessionCompleted = "session_completed"
	EventMessage          = "message"
)

// Session is one collaborative estimation workspace identified by a short code.
// FUNCTIONAL DISCOVERY: Votes live only on CurrentRound; completed rounds keep
// their final estimate but no votes.
type Session struct {
	Code          string                  `json:"code"`
	Title         string                  `json:"title"`
	Description   string                  `json:"description,omitempty"`
	Creator       string                  `json:"creator"`
	Status        string                  `json:"status"`
	Participants  map[string]*Participant `json:"participants"`
	CurrentRound  *Round                  `json:"current_round,omitempty"`
	RoundsHistory []*Round                `json:"rounds_history"`
	IsRevealed    bool                    `json:"is_revealed"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	CompletedAt   *time.Time              `json:"completed_at,omitempty"`
}

// Participant is a member of a session, keyed by username.
type Participant struct {
	Username string    `json:"username"`
	Role     string    `json:"role"`
	Active   bool      `json:"active"`
	JoinedAt time.Time `json:"joined_at"`
}

// Round is one estimation cycle for a single story.
type Round struct {
	Number        int              `json:"round_number"`
	StoryTitle    string           `json:"story_title"`
	Votes         map[string]*Vote `json:"votes,omitempty"`
	FinalEstimate *string          `json:"final_estimate,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}

// Vote is one participant's card for the current round.
type Vote struct {
	User    string    `json:"user"`
	Value   string    `json:"value"`
	VotedAt time.Time `json:"voted_at"`
}

// Event is a notification emitted by a successful transition or a
// connection lifecycle change.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	SessionCode string    `json:"session_code"`
	Username    string    `json:"username,omitempty"`
	RoundNumber int       `json:"round_number,omitempty"`
	Content     string    `json:"content,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// SessionSummary is the list view of a session.
type SessionSummary struct {
	Code             string    `json:"session_code"`
	Title            string    `json:"title"`
	Status           string    `json:"status"`
	Creator          string    `json:"creator"`
	ParticipantCount int       `json:"participant_count"`
	RoundsCompleted  int       `json:"rounds_completed"`
	CreatedAt        time.Time `json:"created_at"`
}

// WheelConfig is a named, ordered list of wheel sectors.
type WheelConfig struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Items     []string  `json:"items"`
	Creator   string    `json:"creator"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WheelResult records the outcome of one spin.
type WheelResult struct {
	ID           string    `json:"id"`
	ConfigID     string    `json:"config_id"`
	SelectedItem string    `json:"selected_item"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsActive reports whether the session accepts joins and round activity.
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

// Participant returns the participant with the given username.
func (s *Session) Participant(username string) (*Participant, bool) {
	p, ok := s.Participants[username]
	return p, ok
}

// IsFacilitator reports whether username holds the facilitator role.
func (s *Session) IsFacilitator(username string) bool {
	p, ok := s.Participants[username]
	return ok && p.Role == RoleFacilitator
}

// NextRoundNumber returns the number the next started round receives.
func (s *Session) NextRoundNumber() int {
	next := len(s.RoundsHistory) + 1
	if s.CurrentRound != nil && s.CurrentRound.Number >= next {
		next = s.CurrentRound.Number + 1
	}
	return next
}

// SortedParticipants returns participants ordered by join time, then username.
func (s *Session) SortedParticipants() []*Participant {
	out := make([]*Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].Username < out[j].Username
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Summary builds the list view of the session.
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		Code:             s.Code,
		Title:            s.Title,
		Status:           s.Status,
		Creator:          s.Creator,
		ParticipantCount: len(s.Participants),
		RoundsCompleted:  len(s.RoundsHistory),
		CreatedAt:        s.CreatedAt,
	}
}

// Clone returns a deep copy so transitions never mutate shared state.
// TECHNICAL DISCOVERY: The cached session is read concurrently by snapshot
// readers; every write path works on a clone and swaps it in under the session lock.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Participants = make(map[string]*Participant, len(s.Participants))
	for name, p := range s.Participants {
		cp := *p
		c.Participants[name] = &cp
	}
	c.CurrentRound = s.CurrentRound.Clone()
	c.RoundsHistory = make([]*Round, len(s.RoundsHistory))
	for i, r := range s.RoundsHistory {
		c.RoundsHistory[i] = r.Clone()
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Clone returns a deep copy of the round.
func (r *Round) Clone() *Round {
	if r == nil {
		return nil
	}
	c := *r
	if r.Votes != nil {
		c.Votes = make(map[string]*Vote, len(r.Votes))
		for user, v := range r.Votes {
			cv := *v
			c.Votes[user] = &cv
		}
	}
	if r.FinalEstimate != nil {
		e := *r.FinalEstimate
		c.FinalEstimate = &e
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
