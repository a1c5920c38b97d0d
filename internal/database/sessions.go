package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"agiletools/pkg/types"
)

// CreateSession inserts a new session aggregate. It fails with ErrCodeTaken
// when the code already exists.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	if session == nil || session.Code == "" {
		return ErrInvalidSession
	}
	return m.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM poker_sessions WHERE code = ?", session.Code).Scan(&exists)
		if err == nil {
			return ErrCodeTaken
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check session code: %w", err)
		}
		return saveSession(ctx, tx, session, allRounds(session))
	})
}

// SaveSession writes the session after one transition in one transaction.
// Only the open round and the most recently completed one are rewritten;
// older history rows never change once written.
func (m *Manager) SaveSession(ctx context.Context, session *types.Session) error {
	if session == nil || session.Code == "" {
		return ErrInvalidSession
	}
	return m.withTx(ctx, func(tx *sql.Tx) error {
		return saveSession(ctx, tx, session, recentRounds(session))
	})
}

// FUNCTIONAL DISCOVERY: Completed rounds are written before the open round so
// the one-open-round index never sees two open rows mid-transaction.
func saveSession(ctx context.Context, tx *sql.Tx, s *types.Session, rounds []*types.Round) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO poker_sessions (code, title, description, creator, status, is_revealed, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			is_revealed = excluded.is_revealed,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at
	`, s.Code, s.Title, s.Description, s.Creator, s.Status, s.IsRevealed,
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt), formatNullTime(s.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	for _, p := range s.SortedParticipants() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO poker_participants (session_code, username, role, active, joined_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(session_code, username) DO UPDATE SET
				role = excluded.role,
				active = excluded.active
		`, s.Code, p.Username, p.Role, p.Active, formatTime(p.JoinedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert participant %s: %w", p.Username, err)
		}
	}

	for _, r := range rounds {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO poker_rounds (session_code, round_number, story_title, final_estimate, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_code, round_number) DO UPDATE SET
				story_title = excluded.story_title,
				final_estimate = excluded.final_estimate,
				completed_at = excluded.completed_at
		`, s.Code, r.Number, r.StoryTitle, r.FinalEstimate, formatTime(r.StartedAt), formatNullTime(r.CompletedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert round %d: %w", r.Number, err)
		}
	}

	// votes only ever belong to the open round
	if _, err := tx.ExecContext(ctx, "DELETE FROM poker_votes WHERE session_code = ?", s.Code); err != nil {
		return fmt.Errorf("failed to clear votes: %w", err)
	}
	if s.CurrentRound != nil {
		for _, v := range s.CurrentRound.Votes {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO poker_votes (session_code, round_number, username, value, voted_at)
				VALUES (?, ?, ?, ?, ?)
			`, s.Code, s.CurrentRound.Number, v.User, v.Value, formatTime(v.VotedAt))
			if err != nil {
				return fmt.Errorf("failed to insert vote for %s: %w", v.User, err)
			}
		}
	}
	return nil
}

// allRounds is history in order followed by the open round.
func allRounds(s *types.Session) []*types.Round {
	rounds := append([]*types.Round{}, s.RoundsHistory...)
	if s.CurrentRound != nil {
		rounds = append(rounds, s.CurrentRound)
	}
	return rounds
}

// recentRounds is what a single transition can touch: the round it just
// completed and the open round.
func recentRounds(s *types.Session) []*types.Round {
	var rounds []*types.Round
	if n := len(s.RoundsHistory); n > 0 {
		rounds = append(rounds, s.RoundsHistory[n-1])
	}
	if s.CurrentRound != nil {
		rounds = append(rounds, s.CurrentRound)
	}
	return rounds
}

// GetSession loads a full session aggregate.
func (m *Manager) GetSession(ctx context.Context, code string) (*types.Session, error) {
	var (
		s           types.Session
		createdAt   dbTime
		updatedAt   dbTime
		completedAt dbTime
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT code, title, description, creator, status, is_revealed, created_at, updated_at, completed_at
		FROM poker_sessions
		WHERE code = ?
	`, code).Scan(&s.Code, &s.Title, &s.Description, &s.Creator, &s.Status, &s.IsRevealed,
		&createdAt, &updatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	s.CreatedAt = createdAt.Time
	s.UpdatedAt = updatedAt.Time
	s.CompletedAt = completedAt.Ptr()

	if err := m.loadParticipants(ctx, &s); err != nil {
		return nil, err
	}
	if err := m.loadRounds(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *Manager) loadParticipants(ctx context.Context, s *types.Session) error {
	rows, err := m.db.QueryContext(ctx, `
		SELECT username, role, active, joined_at
		FROM poker_participants
		WHERE session_code = ?
	`, s.Code)
	if err != nil {
		return fmt.Errorf("failed to query participants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	s.Participants = make(map[string]*types.Participant)
	for rows.Next() {
		var p types.Participant
		var joinedAt dbTime
		if err := rows.Scan(&p.Username, &p.Role, &p.Active, &joinedAt); err != nil {
			return fmt.Errorf("failed to scan participant row: %w", err)
		}
		p.JoinedAt = joinedAt.Time
		s.Participants[p.Username] = &p
	}
	return rows.Err()
}

func (m *Manager) loadRounds(ctx context.Context, s *types.Session) error {
	rows, err := m.db.QueryContext(ctx, `
		SELECT round_number, story_title, final_estimate, started_at, completed_at
		FROM poker_rounds
		WHERE session_code = ?
		ORDER BY round_number ASC
	`, s.Code)
	if err != nil {
		return fmt.Errorf("failed to query rounds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	s.RoundsHistory = []*types.Round{}
	for rows.Next() {
		var (
			r           types.Round
			estimate    sql.NullString
			startedAt   dbTime
			completedAt dbTime
		)
		if err := rows.Scan(&r.Number, &r.StoryTitle, &estimate, &startedAt, &completedAt); err != nil {
			return fmt.Errorf("failed to scan round row: %w", err)
		}
		r.StartedAt = startedAt.Time
		r.CompletedAt = completedAt.Ptr()
		if estimate.Valid {
			e := estimate.String
			r.FinalEstimate = &e
		}
		if r.CompletedAt == nil {
			round := r
			s.CurrentRound = &round
			continue
		}
		completed := r
		s.RoundsHistory = append(s.RoundsHistory, &completed)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if s.CurrentRound == nil {
		return nil
	}
	return m.loadVotes(ctx, s.Code, s.CurrentRound)
}

func (m *Manager) loadVotes(ctx context.Context, code string, round *types.Round) error {
	rows, err := m.db.QueryContext(ctx, `
		SELECT username, value, voted_at
		FROM poker_votes
		WHERE session_code = ? AND round_number = ?
	`, code, round.Number)
	if err != nil {
		return fmt.Errorf("failed to query votes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	round.Votes = make(map[string]*types.Vote)
	for rows.Next() {
		var v types.Vote
		var votedAt dbTime
		if err := rows.Scan(&v.User, &v.Value, &votedAt); err != nil {
			return fmt.Errorf("failed to scan vote row: %w", err)
		}
		v.VotedAt = votedAt.Time
		round.Votes[v.User] = &v
	}
	return rows.Err()
}

// SessionExists reports whether a session with code is stored.
func (m *Manager) SessionExists(ctx context.Context, code string) (bool, error) {
	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM poker_sessions WHERE code = ?", code).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check session code: %w", err)
	}
	return n > 0, nil
}

// ListActiveSessions loads every active session aggregate, newest first.
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT code FROM poker_sessions
		WHERE status = 'active'
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan session code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	_ = rows.Close()

	sessions := make([]*types.Session, 0, len(codes))
	for _, code := range codes {
		s, err := m.GetSession(ctx, code)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// ListSessionsByCreator returns summaries of sessions created by creator, newest first.
func (m *Manager) ListSessionsByCreator(ctx context.Context, creator string) ([]types.SessionSummary, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT s.code, s.title, s.status, s.creator, s.created_at,
			(SELECT COUNT(*) FROM poker_participants p WHERE p.session_code = s.code),
			(SELECT COUNT(*) FROM poker_rounds r WHERE r.session_code = s.code AND r.completed_at IS NOT NULL)
		FROM poker_sessions s
		WHERE s.creator = ?
		ORDER BY s.created_at DESC
	`, creator)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []types.SessionSummary{}
	for rows.Next() {
		var sum types.SessionSummary
		var createdAt dbTime
		if err := rows.Scan(&sum.Code, &sum.Title, &sum.Status, &sum.Creator, &createdAt,
			&sum.ParticipantCount, &sum.RoundsCompleted); err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		sum.CreatedAt = createdAt.Time
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}
