package poker

import (
	"errors"
	"testing"
	"time"

	"agiletools/pkg/types"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newEmptySession() *types.Session {
	return &types.Session{
		Code:         "K7QX2M",
		Title:        "Sprint 12",
		Creator:      "alice",
		Status:       types.SessionStatusActive,
		Participants: map[string]*types.Participant{},
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
}

// run applies each transition in order and fails the test on error.
func run(t *testing.T, s *types.Session, transitions ...Transition) *types.Session {
	t.Helper()
	for i, tr := range transitions {
		next, events, err := tr.Apply(s, testNow.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("%s by %s failed: %v", tr.Name(), tr.Actor(), err)
		}
		if len(events) != 1 {
			t.Fatalf("%s emitted %d events, want 1", tr.Name(), len(events))
		}
		s = next
	}
	return s
}

// expectRejected asserts the transition fails with want and leaves s untouched.
func expectRejected(t *testing.T, s *types.Session, tr Transition, want error) {
	t.Helper()
	before := s.Clone()
	next, events, err := tr.Apply(s, testNow)
	if !errors.Is(err, want) {
		t.Fatalf("%s by %s: expected %v, got %v", tr.Name(), tr.Actor(), want, err)
	}
	if next != nil || events != nil {
		t.Errorf("%s: expected no state or events on error", tr.Name())
	}
	if s.IsRevealed != before.IsRevealed || len(s.RoundsHistory) != len(before.RoundsHistory) ||
		len(s.Participants) != len(before.Participants) {
		t.Errorf("%s: rejected transition mutated the session", tr.Name())
	}
}

func TestJoin_FirstParticipantIsFacilitator(t *testing.T) {
	m := NewMachine(nil)
	s := run(t, newEmptySession(), m.Join("alice"), m.Join("bob"))

	if s.Participants["alice"].Role != types.RoleFacilitator {
		t.Errorf("Expected alice facilitator, got %s", s.Participants["alice"].Role)
	}
	if s.Participants["bob"].Role != types.RoleVoter {
		t.Errorf("Expected bob voter, got %s", s.Participants["bob"].Role)
	}
}

func TestJoin_IsIdempotent(t *testing.T) {
	m := NewMachine(nil)
	s := run(t, newEmptySession(), m.Join("alice"), m.Join("bob"), m.Join("bob"), m.Join("alice"))

	if len(s.Participants) != 2 {
		t.Fatalf("Expected 2 participants, got %d", len(s.Participants))
	}
	if s.Participants["alice"].Role != types.RoleFacilitator {
		t.Error("Re-join must not change the facilitator role")
	}
	if !s.Participants["bob"].JoinedAt.Equal(testNow.Add(time.Second)) {
		t.Error("Re-join must keep the original join time")
	}
}

func TestJoin_Rejections(t *testing.T) {
	m := NewMachine(nil)
	s := run(t, newEmptySession(), m.Join("alice"))
	expectRejected(t, s, m.Join("bad name"), types.ErrInvalidUsername)

	s = run(t, s, m.CompleteSession("alice"))
	expectRejected(t, s, m.Join("bob"), types.ErrSessionCompleted)
}

func TestLeave_KeepsRoleAndRejoinReactivates(t *testing.T) {
	m := NewMachine(nil)
	s := run(t, newEmptySession(), m.Join("alice"), m.Join("bob"), m.Leave("alice"))

	if s.Participants["alice"].Active {
		t.Fatal("Expected alice inactive after leave")
	}
	expectRejected(t, s, m.Leave("carol"), types.ErrNotAParticipant)

	s = run(t, s, m.Join("alice"))
	if !s.Participants["alice"].Active || s.Participants["alice"].Role != types.RoleFacilitator {
		t.Errorf("Expected alice active facilitator after rejoin, got %+v", s.Participants["alice"])
	}
}

func TestStartRound(t *testing.T) {
	m := NewMachine(nil)
	s := run(t, newEmptySession(), m.Join("alice"), m.Join("bob"))

	expectRejected(t, s, m.StartRound("bob", "Story"), types.ErrNotFacilitator)
	expectRejected(t, s, m.StartRound("mallory", "Story"), types.ErrForbidden)

	next, events, err := m.StartRound("alice", "Story 1").Apply(s, testNow)
	if err != nil {
		t.Fatalf("Failed to start round: %v", err)
	}
	if next.CurrentRound == nil || next.CurrentRound.Number != 1 || next.CurrentRound.StoryTitle != "Story 1" {
		t.Errorf("Unexpected round: %+v", next.CurrentRound)
	}
	if events[0].Type != types.EventNewRound || events[0].RoundNumber != 1 || events[0].SessionCode != "K7QX2M" {
		t.Errorf("Unexpected event: %+v", events[0])
	}
	if events[0].ID == "" || !events[0].Timestamp.Equal(testNow) {
		t.Errorf("Expected event id and timestamp, got %+v", events[0])
	}
	if s.CurrentRound != nil {
		t.Error("Apply must not mutate the input session")
	}

	expectRejected(t, next, m.StartRound("alice", "Story 2"), types.ErrRoundAlreadyActive)
}

func TestStartRound_DefaultTitle(t *testing.T) {
	m := NewMachine(nil)
	s := run(t, newEmptySession(), m.Join("alice"), m.StartRound("alice", "  "))
	if s.CurrentRound.StoryTitle != "Round 1" {
		t.Errorf("Expected default title Round 1, got %q", s.CurrentRound.StoryTitle)
	}
}

func TestCastVote_LastWriteWins(t *testing.T) {
	m := NewMachine(nil)
	s := run(t, newEmptySession(), m.Join("alice"), m.Join("bob"), m.StartRound("alice", "Story"))

	first, _, err := m.CastVote("bob", "3").Apply(s, testNow)
	if err != nil {
		t.Fatalf("First vote failed: %v", err)
	}
	later := testNow.Add(time.Minute)
	second, _, err := m.CastVote("bob", "8").Apply(first, later)
	if err != nil {
		t.Fatalf("Second vote failed: %v", err)
	}

	votes := second.CurrentRound.Votes
	if len(votes) != 1 {
		t.Fatalf("Expected exactly one vote, got %d", len(votes))
	}
	if votes["bob"].Value != "8" || !votes["bob"].VotedAt.Equal(later) {
		t.Errorf("Expected latest vote 8 at %v, got %+v", later, votes["bob"])
	}
}

func TestCastVote_Rejections(t *testing.T) {
	m := NewMachine(nil)
	s := run(t, newEmptySession(), m.Join("alice"), m.Join("bob"))

	expectRejected(t, s, m.CastVote("bob", "5"), types.ErrNoActiveRound)

	s = run(t, s, m.StartRound("alice", "Story"))
	expectRejected(t, s, m.CastVote("mallory", "5"), types.ErrNotAParticipant)
	expectRejected(t, s, m.CastVote("bob", "7"), types.ErrInvalidVote)

	left := run(t, s, m.Leave("bob"))
	expectRejected(t, left, m.CastVote("bob", "5"), types.ErrNotAParticipant)

	revealed := run(t, s, m.Reveal("alice"))
	expectRejected(t, revealed, m.CastVote("bob", "5"), types.ErrVotesAlreadyRevealed)
	expectRejected(t, revealed, m.CastVote("bob", "5"), types.ErrInvalidState)
	// round state is checked before membership
	expectRejected(t, revealed, m.CastVote("mallory", "5"), types.ErrVotesAlreadyRevealed)
}

func TestReveal_RepeatedRevealFails(t *testing.T) {
	m := NewMachine(nil)
	s := run(t, newEmptySession(), m.Join("alice"), m.Join("bob"))

	expectRejected(t, s, m.Reveal("alice"), types.ErrNoActiveRound)

	s = run(t, s, m.StartRound("alice", "Story"))
	expectRejected(t, s, m.Reveal("bob"), types.ErrNotFacilitator)

	s = run(t, s, m.Reveal("alice"))
	if !s.IsRevealed {
		t.Fatal("Expected revealed")
	}
	expectRejected(t, s, m.Reveal("alice"), types.ErrVotesAlreadyRevealed)
	if !s.IsRevealed {
		t.Error("Repeated reveal must leave the round revealed")
	}
}

func TestResetVotes(t *testing.T) {
	m := NewMachine(nil)
	s := run(t, newEmptySession(), m.Join("alice"), m.Join("bob"))
	expectRejected(t, s, m.ResetVotes("alice"), types.ErrNoActiveRound)

	s = run(t, s, m.StartRound("alice", "Story"), m.CastVote("bob", "5"), m.CastVote("alice", "8"))
	expectRejected(t, s, m.ResetVotes("bob"), types.ErrNotFacilitator)

	hidden := run(t, s, m.ResetVotes("alice"))
	if len(hidden.CurrentRound.Votes) != 0 || hidden.IsRevealed {
		t.Errorf("Expected cleared hidden round, got %d votes revealed=%v", len(hidden.CurrentRound.Votes), hidden.IsRevealed)
	}

	revealed := run(t, s, m.Reveal("alice"), m.ResetVotes("alice"))
	if len(revealed.CurrentRound.Votes) != 0 || revealed.IsRevealed {
		t.Errorf("Expected reset after reveal to clear and hide, got %d votes revealed=%v", len(revealed.CurrentRound.Votes), revealed.IsRevealed)
	}

	// voting reopens after a reset
	run(t, revealed, m.CastVote("bob", "13"))
}

func TestCompleteRound(t *testing.T) {
	m := NewMachine(nil)
	s := run(t, newEmptySession(), m.Join("alice"), m.Join("bob"),
		m.StartRound("alice", "Story 1"), m.CastVote("bob", "5"))

	expectRejected(t, s, m.CompleteRound("alice", 1, "5"), types.ErrVotesNotRevealed)

	s = run(t, s, m.Reveal("alice"))
	expectRejected(t, s, m.CompleteRound("bob", 1, "5"), types.ErrNotFacilitator)
	expectRejected(t, s, m.CompleteRound("alice", 4, "5"), types.ErrRoundNotFound)
	expectRejected(t, s, m.CompleteRound("alice", 1, "big"), types.ErrInvalidEstimate)

	s = run(t, s, m.CompleteRound("alice", 1, "5"))
	if s.CurrentRound != nil || s.IsRevealed {
		t.Errorf("Expected no current round after completion")
	}
	if len(s.RoundsHistory) != 1 {
		t.Fatalf("Expected 1 completed round, got %d", len(s.RoundsHistory))
	}
	done := s.RoundsHistory[0]
	if done.Number != 1 || done.StoryTitle != "Story 1" || *done.FinalEstimate != "5" || done.CompletedAt == nil {
		t.Errorf("Unexpected completed round: %+v", done)
	}
	if len(done.Votes) != 0 {
		t.Error("Expected completed round to carry no votes")
	}

	expectRejected(t, s, m.CompleteRound("alice", 1, "5"), types.ErrRoundAlreadyCompleted)
	expectRejected(t, s, m.CompleteRound("alice", 2, "5"), types.ErrNoActiveRound)
}

// FUNCTIONAL VALIDATION TEST: history grows by exactly one per completed round, at the tail
func TestRoundsHistory_Ordering(t *testing.T) {
	m := NewMachine(nil)
	s := run(t, newEmptySession(), m.Join("alice"))
	for i := 1; i <= 3; i++ {
		s = run(t, s, m.StartRound("alice", ""), m.Reveal("alice"), m.CompleteRound("alice", i, "1"))
		if len(s.RoundsHistory) != i {
			t.Fatalf("Expected %d completed rounds, got %d", i, len(s.RoundsHistory))
		}
		if tail := s.RoundsHistory[i-1]; tail.Number != i {
			t.Errorf("Expected round %d at tail, got %d", i, tail.Number)
		}
	}
	s = run(t, s, m.StartRound("alice", ""))
	if s.CurrentRound.Number != 4 {
		t.Errorf("Expected round number 4, got %d", s.CurrentRound.Number)
	}
}

func TestCompleteSession(t *testing.T) {
	m := NewMachine(nil)
	s := run(t, newEmptySession(), m.Join("alice"), m.Join("bob"))
	expectRejected(t, s, m.CompleteSession("bob"), types.ErrNotFacilitator)

	s = run(t, s, m.CompleteSession("alice"))
	if s.Status != types.SessionStatusCompleted || s.CompletedAt == nil {
		t.Errorf("Expected completed session, got status %s", s.Status)
	}
	expectRejected(t, s, m.CompleteSession("alice"), types.ErrSessionCompleted)
	expectRejected(t, s, m.StartRound("alice", "late"), types.ErrSessionCompleted)
}

func TestTransition_NilSession(t *testing.T) {
	m := NewMachine(nil)
	if _, _, err := m.Join("alice").Apply(nil, testNow); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestTransition_EventTypes(t *testing.T) {
	m := NewMachine(nil)
	s := newEmptySession()
	steps := []struct {
		tr   Transition
		want string
	}{
		{m.Join("alice"), types.EventUserJoined},
		{m.Join("bob"), types.EventUserJoined},
		{m.StartRound("alice", "Story"), types.EventNewRound},
		{m.CastVote("bob", "5"), types.EventVoteCast},
		{m.Reveal("alice"), types.EventVotesRevealed},
		{m.ResetVotes("alice"), types.EventVotesReset},
		{m.Reveal("alice"), types.EventVotesRevealed},
		{m.CompleteRound("alice", 1, "3"), types.EventRoundCompleted},
		{m.Leave("bob"), types.EventUserLeft},
		{m.CompleteSession("alice"), types.EventSessionCompleted},
	}
	for _, step := range steps {
		next, events, err := step.tr.Apply(s, testNow)
		if err != nil {
			t.Fatalf("%s failed: %v", step.tr.Name(), err)
		}
		if events[0].Type != step.want {
			t.Errorf("%s emitted %s, want %s", step.tr.Name(), events[0].Type, step.want)
		}
		if events[0].Username != step.tr.Actor() {
			t.Errorf("%s event username %q, want %q", step.tr.Name(), events[0].Username, step.tr.Actor())
		}
		s = next
	}
}
