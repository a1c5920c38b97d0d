// Package poker holds the session state machine: pure transitions over a
// private copy of a session that yield the next state and its domain events.
package poker

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"agiletools/pkg/types"
)

// Transition names
const (
	TransitionJoin            = "join"
	TransitionLeave           = "leave"
	TransitionStartRound      = "start_round"
	TransitionCastVote        = "cast_vote"
	TransitionReveal          = "reveal"
	TransitionResetVotes      = "reset_votes"
	TransitionCompleteRound   = "complete_round"
	TransitionCompleteSession = "complete_session"
)

// Transition is one state machine step requested by an actor.
type Transition struct {
	name  string
	actor string
	step  func(s *types.Session, now time.Time) (types.Event, error)
}

// Name returns the transition name used in logs and traces.
func (t Transition) Name() string { return t.name }

// Actor returns the username requesting the transition.
func (t Transition) Actor() string { return t.actor }

// Apply computes the next session from current without mutating it. On error
// the returned session is nil and current is untouched.
func (t Transition) Apply(current *types.Session, now time.Time) (*types.Session, []types.Event, error) {
	if current == nil {
		return nil, nil, types.ErrSessionNotFound
	}
	if t.step == nil {
		return nil, nil, fmt.Errorf("transition %q has no step", t.name)
	}
	next := current.Clone()
	event, err := t.step(next, now)
	if err != nil {
		return nil, nil, err
	}
	next.UpdatedAt = now

	event.ID = uuid.NewString()
	event.SessionCode = next.Code
	event.Timestamp = now
	if event.Username == "" {
		event.Username = t.actor
	}
	return next, []types.Event{event}, nil
}

// Machine builds transitions bound to a card deck.
type Machine struct {
	deck *types.Deck
}

// NewMachine creates a state machine; a nil deck uses types.DefaultDeck.
func NewMachine(deck *types.Deck) *Machine {
	if deck == nil {
		deck = types.NewDeck(nil)
	}
	return &Machine{deck: deck}
}

// Deck returns the deck votes are validated against.
func (m *Machine) Deck() *types.Deck {
	return m.deck
}

// Join adds username as a participant, or reactivates a participant who left.
// The first participant of a session becomes the facilitator; everyone after is a voter.
func (m *Machine) Join(username string) Transition {
	return Transition{name: TransitionJoin, actor: username, step: func(s *types.Session, now time.Time) (types.Event, error) {
		if !types.IsValidUsername(username) {
			return types.Event{}, types.ErrInvalidUsername
		}
		if !s.IsActive() {
			return types.Event{}, types.ErrSessionCompleted
		}
		if s.Participants == nil {
			s.Participants = make(map[string]*types.Participant)
		}
		if p, exists := s.Participants[username]; exists {
			p.Active = true
		} else {
			role := types.RoleVoter
			if len(s.Participants) == 0 {
				role = types.RoleFacilitator
			}
			s.Participants[username] = &types.Participant{
				Username: username,
				Role:     role,
				Active:   true,
				JoinedAt: now,
			}
		}
		return types.Event{Type: types.EventUserJoined}, nil
	}}
}

// Leave marks username inactive. Role and past votes are kept so a later
// Join restores the same participant.
func (m *Machine) Leave(username string) Transition {
	return Transition{name: TransitionLeave, actor: username, step: func(s *types.Session, now time.Time) (types.Event, error) {
		p, exists := s.Participants[username]
		if !exists {
			return types.Event{}, types.ErrNotAParticipant
		}
		p.Active = false
		return types.Event{Type: types.EventUserLeft}, nil
	}}
}

// StartRound opens the next round. A blank title defaults to "Round N".
func (m *Machine) StartRound(actor, storyTitle string) Transition {
	return Transition{name: TransitionStartRound, actor: actor, step: func(s *types.Session, now time.Time) (types.Event, error) {
		if err := requireFacilitator(s, actor); err != nil {
			return types.Event{}, err
		}
		if !s.IsActive() {
			return types.Event{}, types.ErrSessionCompleted
		}
		if s.CurrentRound != nil {
			return types.Event{}, types.ErrRoundAlreadyActive
		}
		if err := types.ValidateStoryTitle(storyTitle); err != nil {
			return types.Event{}, err
		}

		number := s.NextRoundNumber()
		title := strings.TrimSpace(storyTitle)
		if title == "" {
			title = fmt.Sprintf("Round %d", number)
		}
		s.CurrentRound = &types.Round{
			Number:     number,
			StoryTitle: title,
			Votes:      make(map[string]*types.Vote),
			StartedAt:  now,
		}
		s.IsRevealed = false
		return types.Event{Type: types.EventNewRound, RoundNumber: number}, nil
	}}
}

// CastVote records or overwrites actor's vote in the current round.
func (m *Machine) CastVote(actor, value string) Transition {
	return Transition{name: TransitionCastVote, actor: actor, step: func(s *types.Session, now time.Time) (types.Event, error) {
		if !s.IsActive() {
			return types.Event{}, types.ErrSessionCompleted
		}
		if s.CurrentRound == nil {
			return types.Event{}, types.ErrNoActiveRound
		}
		if s.IsRevealed {
			return types.Event{}, types.ErrVotesAlreadyRevealed
		}
		if p, ok := s.Participant(actor); !ok || !p.Active {
			return types.Event{}, types.ErrNotAParticipant
		}
		value = strings.TrimSpace(value)
		if !m.deck.Contains(value) {
			return types.Event{}, types.ErrInvalidVote
		}

		if s.CurrentRound.Votes == nil {
			s.CurrentRound.Votes = make(map[string]*types.Vote)
		}
		s.CurrentRound.Votes[actor] = &types.Vote{User: actor, Value: value, VotedAt: now}
		return types.Event{Type: types.EventVoteCast, RoundNumber: s.CurrentRound.Number}, nil
	}}
}

// Reveal makes the current round's votes visible. Revealing twice is an error.
func (m *Machine) Reveal(actor string) Transition {
	return Transition{name: TransitionReveal, actor: actor, step: func(s *types.Session, now time.Time) (types.Event, error) {
		if err := requireFacilitator(s, actor); err != nil {
			return types.Event{}, err
		}
		if s.CurrentRound == nil {
			return types.Event{}, types.ErrNoActiveRound
		}
		if s.IsRevealed {
			return types.Event{}, types.ErrVotesAlreadyRevealed
		}
		s.IsRevealed = true
		return types.Event{Type: types.EventVotesRevealed, RoundNumber: s.CurrentRound.Number}, nil
	}}
}

// ResetVotes clears every vote in the current round and hides the table again.
func (m *Machine) ResetVotes(actor string) Transition {
	return Transition{name: TransitionResetVotes, actor: actor, step: func(s *types.Session, now time.Time) (types.Event, error) {
		if err := requireFacilitator(s, actor); err != nil {
			return types.Event{}, err
		}
		if s.CurrentRound == nil {
			return types.Event{}, types.ErrNoActiveRound
		}
		s.CurrentRound.Votes = make(map[string]*types.Vote)
		s.IsRevealed = false
		return types.Event{Type: types.EventVotesReset, RoundNumber: s.CurrentRound.Number}, nil
	}}
}

// CompleteRound stores the final estimate and moves the round to history.
func (m *Machine) CompleteRound(actor string, roundNumber int, finalEstimate string) Transition {
	return Transition{name: TransitionCompleteRound, actor: actor, step: func(s *types.Session, now time.Time) (types.Event, error) {
		if err := requireFacilitator(s, actor); err != nil {
			return types.Event{}, err
		}
		if s.CurrentRound == nil || s.CurrentRound.Number != roundNumber {
			for _, r := range s.RoundsHistory {
				if r.Number == roundNumber {
					return types.Event{}, types.ErrRoundAlreadyCompleted
				}
			}
			if s.CurrentRound == nil {
				return types.Event{}, types.ErrNoActiveRound
			}
			return types.Event{}, types.ErrRoundNotFound
		}
		if !s.IsRevealed {
			return types.Event{}, types.ErrVotesNotRevealed
		}
		finalEstimate = strings.TrimSpace(finalEstimate)
		if err := m.deck.ValidateEstimate(finalEstimate); err != nil {
			return types.Event{}, err
		}

		completed := s.CurrentRound
		completed.FinalEstimate = &finalEstimate
		completedAt := now
		completed.CompletedAt = &completedAt
		completed.Votes = nil
		s.RoundsHistory = append(s.RoundsHistory, completed)
		s.CurrentRound = nil
		s.IsRevealed = false
		return types.Event{Type: types.EventRoundCompleted, RoundNumber: completed.Number}, nil
	}}
}

// CompleteSession closes the session. Participants keep read access.
func (m *Machine) CompleteSession(actor string) Transition {
	return Transition{name: TransitionCompleteSession, actor: actor, step: func(s *types.Session, now time.Time) (types.Event, error) {
		if err := requireFacilitator(s, actor); err != nil {
			return types.Event{}, err
		}
		if !s.IsActive() {
			return types.Event{}, types.ErrSessionCompleted
		}
		s.Status = types.SessionStatusCompleted
		completedAt := now
		s.CompletedAt = &completedAt
		return types.Event{Type: types.EventSessionCompleted}, nil
	}}
}

func requireFacilitator(s *types.Session, actor string) error {
	if !s.IsFacilitator(actor) {
		return types.ErrNotFacilitator
	}
	return nil
}
