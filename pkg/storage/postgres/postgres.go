// Package postgres is the pgx-backed Store used when INTERVIEW_DATABASE_URL
// is configured.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/skillforge/interview-gateway/pkg/interview"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	pool *pgxpool.Pool
}

// Open connects, runs pending migrations, and returns the store.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := migrate(cfg); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func migrate(cfg *pgxpool.Config) error {
	db := stdlib.OpenDB(*cfg.ConnConfig)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess interview.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO interview_sessions
			(id, topic, level, candidate_context, system_prompt, status,
			 avatar_persona_id, avatar_conversation_id, conversation_url,
			 started_at, ended_at, duration_seconds)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		sess.ID, sess.Topic, string(sess.Level), sess.CandidateContext,
		sess.SystemPrompt, string(sess.Status),
		sess.AvatarPersonaID, sess.AvatarConversationID, sess.ConversationURL,
		sess.StartedAt, nullableTime(sess.EndedAt), sess.DurationSeconds)
	return err
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (interview.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, topic, level, candidate_context, system_prompt, status,
		       avatar_persona_id, avatar_conversation_id, conversation_url,
		       started_at, ended_at, duration_seconds
		FROM interview_sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (s *Store) UpdateSession(ctx context.Context, sess interview.Session) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx,
			`SELECT status FROM interview_sessions WHERE id = $1 FOR UPDATE`,
			sess.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return interview.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !interview.Status(current).CanTransition(sess.Status) {
			return interview.ErrInvalidTransition
		}
		_, err = tx.Exec(ctx, `
			UPDATE interview_sessions SET
				candidate_context = $2, system_prompt = $3, status = $4,
				avatar_persona_id = $5, avatar_conversation_id = $6,
				conversation_url = $7, ended_at = $8, duration_seconds = $9
			WHERE id = $1`,
			sess.ID, sess.CandidateContext, sess.SystemPrompt,
			string(sess.Status), sess.AvatarPersonaID,
			sess.AvatarConversationID, sess.ConversationURL,
			nullableTime(sess.EndedAt), sess.DurationSeconds)
		return err
	})
}

func (s *Store) AppendEntry(ctx context.Context, e interview.TranscriptEntry) (int, error) {
	if len(e.AudioSample) > interview.MaxAudioSampleBytes {
		e.AudioSample = e.AudioSample[:interview.MaxAudioSampleBytes]
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	var seq int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Lock the session row so concurrent appends for the same session
		// serialize and the assigned sequence stays gap-free.
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT true FROM interview_sessions WHERE id = $1 FOR UPDATE`,
			e.SessionID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return interview.ErrNotFound
		}
		if err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO interview_transcript_entries
				(session_id, sequence, speaker, text, audio_sample, created_at)
			SELECT $1, COUNT(*), $2, $3, $4, $5
			FROM interview_transcript_entries WHERE session_id = $1
			RETURNING sequence`,
			e.SessionID, string(e.Speaker), e.Text, e.AudioSample, e.Timestamp,
		).Scan(&seq)
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *Store) Entries(ctx context.Context, sessionID uuid.UUID) ([]interview.TranscriptEntry, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, sequence, speaker, text, audio_sample, created_at
		FROM interview_transcript_entries
		WHERE session_id = $1 ORDER BY sequence ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []interview.TranscriptEntry
	for rows.Next() {
		var e interview.TranscriptEntry
		var speaker string
		if err := rows.Scan(&e.SessionID, &e.Sequence, &speaker, &e.Text, &e.AudioSample, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Speaker = interview.Speaker(speaker)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CreateReport(ctx context.Context, sessionID uuid.UUID, r interview.Report) (interview.Report, error) {
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO interview_reports
			(session_id, summary, strengths, improvements,
			 topic_score, comm_score, problem_score, overall_score,
			 recommendation, generated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (session_id) DO NOTHING`,
		sessionID, r.Summary, r.Strengths, r.Improvements,
		r.TopicScore, r.CommScore, r.ProblemScore, r.Overall,
		r.Recommendation, r.GeneratedAt)
	if err != nil {
		return interview.Report{}, err
	}
	stored, ok, err := s.GetReport(ctx, sessionID)
	if err != nil {
		return interview.Report{}, err
	}
	if !ok {
		return interview.Report{}, interview.ErrNotFound
	}
	return stored, nil
}

func (s *Store) GetReport(ctx context.Context, sessionID uuid.UUID) (interview.Report, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT summary, strengths, improvements,
		       topic_score, comm_score, problem_score, overall_score,
		       recommendation, generated_at
		FROM interview_reports WHERE session_id = $1`, sessionID)

	var r interview.Report
	err := row.Scan(&r.Summary, &r.Strengths, &r.Improvements,
		&r.TopicScore, &r.CommScore, &r.ProblemScore, &r.Overall,
		&r.Recommendation, &r.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return interview.Report{}, false, nil
	}
	if err != nil {
		return interview.Report{}, false, err
	}
	return r, true, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func scanSession(row pgx.Row) (interview.Session, error) {
	var sess interview.Session
	var level, status string
	var endedAt *time.Time
	err := row.Scan(&sess.ID, &sess.Topic, &level, &sess.CandidateContext,
		&sess.SystemPrompt, &status,
		&sess.AvatarPersonaID, &sess.AvatarConversationID, &sess.ConversationURL,
		&sess.StartedAt, &endedAt, &sess.DurationSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return interview.Session{}, interview.ErrNotFound
	}
	if err != nil {
		return interview.Session{}, err
	}
	sess.Level = interview.Level(level)
	sess.Status = interview.Status(status)
	if endedAt != nil {
		sess.EndedAt = *endedAt
	}
	return sess, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
