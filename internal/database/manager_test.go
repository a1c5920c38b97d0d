package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	dbconfig "agiletools/pkg/database"
	"agiletools/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := dbconfig.DefaultConfig()
	cfg.Driver = dbconfig.DriverPureGo
	cfg.DatabasePath = filepath.Join(t.TempDir(), "agiletools.db")
	cfg.WriteRetryDelay = 10 * time.Millisecond
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Logf("Failed to close manager: %v", err)
		}
	})
	return m
}

var baseTime = time.Date(2026, 4, 5, 10, 30, 0, 123456789, time.UTC)

func sampleSession(code string) *types.Session {
	return &types.Session{
		Code:        code,
		Title:       "Sprint 7",
		Description: "Backlog grooming",
		Creator:     "alice",
		Status:      types.SessionStatusActive,
		Participants: map[string]*types.Participant{
			"alice": {Username: "alice", Role: types.RoleFacilitator, Active: true, JoinedAt: baseTime},
		},
		RoundsHistory: []*types.Round{},
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	}
}

func TestManager_CreateAndGetSession(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.CreateSession(ctx, sampleSession("AAAA22")); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := m.CreateSession(ctx, sampleSession("AAAA22")); !errors.Is(err, ErrCodeTaken) {
		t.Errorf("Expected ErrCodeTaken, got %v", err)
	}

	got, err := m.GetSession(ctx, "AAAA22")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if got.Title != "Sprint 7" || got.Description != "Backlog grooming" || got.Creator != "alice" {
		t.Errorf("Unexpected session: %+v", got)
	}
	if !got.CreatedAt.Equal(baseTime) {
		t.Errorf("Expected created_at %v, got %v", baseTime, got.CreatedAt)
	}
	if p := got.Participants["alice"]; p == nil || p.Role != types.RoleFacilitator || !p.Active {
		t.Errorf("Unexpected participant: %+v", p)
	}
	if got.CurrentRound != nil || len(got.RoundsHistory) != 0 {
		t.Error("Expected no rounds")
	}

	if _, err := m.GetSession(ctx, "ZZZZ99"); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	exists, err := m.SessionExists(ctx, "AAAA22")
	if err != nil || !exists {
		t.Errorf("Expected session to exist, got %v %v", exists, err)
	}
}

// FUNCTIONAL VALIDATION TEST: the aggregate round-trips through save and load
func TestManager_SaveSessionRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	s := sampleSession("BBBB33")
	if err := m.CreateSession(ctx, s); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	estimate := "5"
	done := baseTime.Add(time.Minute)
	s.Participants["bob"] = &types.Participant{Username: "bob", Role: types.RoleVoter, Active: false, JoinedAt: baseTime.Add(time.Second)}
	s.RoundsHistory = []*types.Round{{Number: 1, StoryTitle: "Login", FinalEstimate: &estimate, StartedAt: baseTime, CompletedAt: &done}}
	s.CurrentRound = &types.Round{
		Number:     2,
		StoryTitle: "Logout",
		StartedAt:  done,
		Votes: map[string]*types.Vote{
			"alice": {User: "alice", Value: "8", VotedAt: done},
			"bob":   {User: "bob", Value: "?", VotedAt: done},
		},
	}
	s.IsRevealed = true
	if err := m.SaveSession(ctx, s); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	got, err := m.GetSession(ctx, "BBBB33")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if !got.IsRevealed {
		t.Error("Expected revealed")
	}
	if got.Participants["bob"] == nil || got.Participants["bob"].Active {
		t.Errorf("Expected inactive bob, got %+v", got.Participants["bob"])
	}
	if len(got.RoundsHistory) != 1 || *got.RoundsHistory[0].FinalEstimate != "5" || !got.RoundsHistory[0].CompletedAt.Equal(done) {
		t.Errorf("Unexpected history: %+v", got.RoundsHistory)
	}
	if got.CurrentRound == nil || got.CurrentRound.Number != 2 || len(got.CurrentRound.Votes) != 2 {
		t.Fatalf("Unexpected current round: %+v", got.CurrentRound)
	}
	if got.CurrentRound.Votes["bob"].Value != "?" {
		t.Errorf("Expected bob's vote ?, got %s", got.CurrentRound.Votes["bob"].Value)
	}

	// completing round 2 clears its votes and moves it to history
	estimate2 := "8"
	later := done.Add(time.Minute)
	s.CurrentRound.FinalEstimate = &estimate2
	s.CurrentRound.CompletedAt = &later
	s.CurrentRound.Votes = nil
	s.RoundsHistory = append(s.RoundsHistory, s.CurrentRound)
	s.CurrentRound = nil
	s.IsRevealed = false
	if err := m.SaveSession(ctx, s); err != nil {
		t.Fatalf("Failed to save completed round: %v", err)
	}

	got, err = m.GetSession(ctx, "BBBB33")
	if err != nil {
		t.Fatalf("Failed to reload session: %v", err)
	}
	if got.CurrentRound != nil || len(got.RoundsHistory) != 2 || got.RoundsHistory[1].Number != 2 {
		t.Errorf("Unexpected rounds after completion: current=%+v history=%d", got.CurrentRound, len(got.RoundsHistory))
	}
	var votes int
	if err := m.GetDB().QueryRow("SELECT COUNT(*) FROM poker_votes").Scan(&votes); err != nil {
		t.Fatalf("Failed to count votes: %v", err)
	}
	if votes != 0 {
		t.Errorf("Expected no stored votes, got %d", votes)
	}
}

// FUNCTIONAL VALIDATION TEST: a save after one transition leaves older history rows alone
func TestManager_SaveSessionRewritesOnlyRecentRounds(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	s := sampleSession("CCCC44")
	for n := 1; n <= 3; n++ {
		estimate := fmt.Sprint(n)
		done := baseTime.Add(time.Duration(n) * time.Minute)
		s.RoundsHistory = append(s.RoundsHistory, &types.Round{
			Number: n, StoryTitle: fmt.Sprintf("Story %d", n), FinalEstimate: &estimate,
			StartedAt: baseTime, CompletedAt: &done,
		})
	}
	if err := m.CreateSession(ctx, s); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	// an in-memory edit to an old round must not reach the store
	s.RoundsHistory[0].StoryTitle = "edited"
	s.RoundsHistory[2].StoryTitle = "Story 3 (renamed)"
	s.CurrentRound = &types.Round{Number: 4, StoryTitle: "Story 4", StartedAt: baseTime.Add(time.Hour)}
	if err := m.SaveSession(ctx, s); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	got, err := m.GetSession(ctx, "CCCC44")
	if err != nil {
		t.Fatalf("Failed to get session: %v", err)
	}
	if len(got.RoundsHistory) != 3 || got.CurrentRound == nil || got.CurrentRound.Number != 4 {
		t.Fatalf("Unexpected rounds: history=%d current=%+v", len(got.RoundsHistory), got.CurrentRound)
	}
	if got.RoundsHistory[0].StoryTitle != "Story 1" {
		t.Errorf("Expected old round untouched, got %q", got.RoundsHistory[0].StoryTitle)
	}
	if got.RoundsHistory[2].StoryTitle != "Story 3 (renamed)" {
		t.Errorf("Expected latest completed round rewritten, got %q", got.RoundsHistory[2].StoryTitle)
	}
}

func TestManager_ListSessions(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for i, code := range []string{"CCCC44", "DDDD55", "EEEE66"} {
		s := sampleSession(code)
		s.CreatedAt = baseTime.Add(time.Duration(i) * time.Hour)
		if code == "EEEE66" {
			s.Creator = "bob"
			s.Status = types.SessionStatusCompleted
		}
		if err := m.CreateSession(ctx, s); err != nil {
			t.Fatalf("Failed to create %s: %v", code, err)
		}
	}

	summaries, err := m.ListSessionsByCreator(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(summaries) != 2 || summaries[0].Code != "DDDD55" || summaries[1].Code != "CCCC44" {
		t.Errorf("Expected newest first [DDDD55 CCCC44], got %+v", summaries)
	}
	if summaries[0].ParticipantCount != 1 {
		t.Errorf("Expected 1 participant, got %d", summaries[0].ParticipantCount)
	}

	active, err := m.ListActiveSessions(ctx)
	if err != nil {
		t.Fatalf("Failed to list active sessions: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("Expected 2 active sessions, got %d", len(active))
	}
}

func TestManager_WheelConfigs(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	config := &types.WheelConfig{ID: "w1", Name: "Lunch", Items: []string{"Pizza", "Pizza", "Sushi"}, Creator: "alice", CreatedAt: baseTime, UpdatedAt: baseTime}
	if err := m.CreateWheelConfig(ctx, config); err != nil {
		t.Fatalf("Failed to create wheel config: %v", err)
	}

	got, err := m.GetWheelConfig(ctx, "w1")
	if err != nil {
		t.Fatalf("Failed to get wheel config: %v", err)
	}
	if len(got.Items) != 3 || got.Items[0] != "Pizza" || got.Items[2] != "Sushi" {
		t.Errorf("Expected item order preserved with duplicates, got %v", got.Items)
	}

	config.Name = "Dinner"
	config.Items = []string{"Tacos"}
	if err := m.UpdateWheelConfig(ctx, config); err != nil {
		t.Fatalf("Failed to update wheel config: %v", err)
	}
	list, err := m.ListWheelConfigs(ctx, "alice")
	if err != nil || len(list) != 1 || list[0].Name != "Dinner" {
		t.Errorf("Unexpected list: %+v %v", list, err)
	}
	if others, _ := m.ListWheelConfigs(ctx, "bob"); len(others) != 0 {
		t.Errorf("Expected no configs for bob, got %d", len(others))
	}

	if err := m.UpdateWheelConfig(ctx, &types.WheelConfig{ID: "missing", Name: "x", Items: []string{"a"}}); !errors.Is(err, types.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound on update, got %v", err)
	}
	if _, err := m.GetWheelConfig(ctx, "missing"); !errors.Is(err, types.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound on get, got %v", err)
	}
}

func TestManager_WheelResults(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	config := &types.WheelConfig{ID: "w1", Name: "Lunch", Items: []string{"A"}, Creator: "alice", CreatedAt: baseTime, UpdatedAt: baseTime}
	if err := m.CreateWheelConfig(ctx, config); err != nil {
		t.Fatalf("Failed to create wheel config: %v", err)
	}

	for i := 0; i < 25; i++ {
		r := &types.WheelResult{ID: fmt.Sprintf("r%02d", i), ConfigID: "w1", SelectedItem: "A", CreatedAt: baseTime.Add(time.Duration(i) * time.Second)}
		if err := m.StoreWheelResult(ctx, r); err != nil {
			t.Fatalf("Failed to store result %d: %v", i, err)
		}
	}
	if err := m.StoreWheelResult(ctx, &types.WheelResult{ID: "x", ConfigID: "nope", SelectedItem: "A", CreatedAt: baseTime}); !errors.Is(err, types.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}

	results, err := m.ListWheelResults(ctx, "w1", 20)
	if err != nil {
		t.Fatalf("Failed to list results: %v", err)
	}
	if len(results) != 20 || results[0].ID != "r24" || results[19].ID != "r05" {
		t.Errorf("Expected the 20 newest results, got %d starting %s", len(results), results[0].ID)
	}

	if err := m.DeleteWheelConfig(ctx, "w1"); err != nil {
		t.Fatalf("Failed to delete wheel config: %v", err)
	}
	if results, _ := m.ListWheelResults(ctx, "w1", 20); len(results) != 0 {
		t.Errorf("Expected results to cascade, got %d", len(results))
	}
	if err := m.DeleteWheelConfig(ctx, "w1"); !errors.Is(err, types.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound on second delete, got %v", err)
	}
}

// ARCHITECTURAL VALIDATION TEST: concurrent writers are serialized by the single writer
func TestManager_ConcurrentWrites(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- m.CreateSession(ctx, sampleSession(fmt.Sprintf("CONC%02d", i)))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent create failed: %v", err)
		}
	}
	active, err := m.ListActiveSessions(ctx)
	if err != nil || len(active) != 20 {
		t.Errorf("Expected 20 sessions, got %d (%v)", len(active), err)
	}
}

func TestManager_CloseRejectsWrites(t *testing.T) {
	m := newTestManager(t)
	if err := m.HealthCheck(context.Background()); err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}
	if err := m.SaveSession(context.Background(), sampleSession("FFFF77")); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Expected ErrManagerClosed, got %v", err)
	}
}

func TestDBTime_Scan(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		valid bool
	}{
		{"nil", nil, false},
		{"time", baseTime, true},
		{"layout", formatTime(baseTime), true},
		{"rfc3339", baseTime.Format(time.RFC3339Nano), true},
		{"bytes", []byte(formatTime(baseTime)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d dbTime
			if err := d.Scan(tt.value); err != nil {
				t.Fatalf("Scan failed: %v", err)
			}
			if d.Valid != tt.valid {
				t.Errorf("Expected valid=%v", tt.valid)
			}
			if tt.valid && !d.Time.Equal(baseTime) {
				t.Errorf("Expected %v, got %v", baseTime, d.Time)
			}
		})
	}
	var d dbTime
	if err := d.Scan("yesterday"); err == nil {
		t.Error("Expected error for unparseable time")
	}
}
