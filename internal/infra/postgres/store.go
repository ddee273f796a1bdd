package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"qrquest/internal/domain"
)

// rankLockKey serializes completion-rank assignment across transactions.
const rankLockKey = 0x51527175

const participantColumns = `id, identity, display_name, nickname, registered_at, last_activity_at, correct_count, completion_rank`

// Store is the Postgres answer ledger. Answer recording runs in a SERIALIZABLE
// transaction; lost races surface as domain.ErrStorageConflict for the caller to retry.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Participant(ctx context.Context, identity string) (domain.Participant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE identity = $1`, identity)
	p, err := scanParticipant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("load participant: %w", mapError(err))
	}
	return p, nil
}

func (s *Store) Register(ctx context.Context, p domain.Participant) (domain.Participant, bool, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO participants (identity, display_name, nickname, registered_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity) DO NOTHING
		RETURNING `+participantColumns,
		p.Identity, p.DisplayName, p.Nickname, p.RegisteredAt, p.LastActivityAt)
	created, err := scanParticipant(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, false, fmt.Errorf("register participant: %w", mapError(err))
	}

	existing, err := s.Participant(ctx, p.Identity)
	if err != nil {
		return domain.Participant{}, false, err
	}
	return existing, false, nil
}

func (s *Store) CountParticipants(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM participants`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count participants: %w", mapError(err))
	}
	return n, nil
}

func (s *Store) Participants(ctx context.Context) ([]domain.Participant, error) {
	return s.queryParticipants(ctx, `SELECT `+participantColumns+` FROM participants ORDER BY id`)
}

func (s *Store) HasAnswer(ctx context.Context, participantID int64, questionID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM answers WHERE participant_id = $1 AND question_id = $2)`,
		participantID, questionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check answer: %w", mapError(err))
	}
	return exists, nil
}

func (s *Store) RecordAnswer(ctx context.Context, answer domain.Answer, catalogSize int) (domain.AnswerResult, error) {
	var result domain.AnswerResult
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		p, err := scanParticipant(tx.QueryRow(ctx,
			`SELECT `+participantColumns+` FROM participants WHERE id = $1 FOR UPDATE`, answer.ParticipantID))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrParticipantNotFound
		}
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO answers (participant_id, question_id, choice, correct, answered_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (participant_id, question_id) DO NOTHING
			RETURNING id`,
			answer.ParticipantID, answer.QuestionID, answer.Option, answer.Correct, answer.AnsweredAt,
		).Scan(&answer.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Reject(domain.ReasonDuplicateAnswer)
		}
		if err != nil {
			return err
		}

		if answer.Correct {
			p.CorrectCount++
		}
		p.LastActivityAt = answer.AnsweredAt

		var answered int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM answers WHERE participant_id = $1`, p.ID).Scan(&answered); err != nil {
			return err
		}

		completed := false
		if answered == catalogSize && p.CompletionRank == nil {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, rankLockKey); err != nil {
				return err
			}
			var rank int
			if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(completion_rank), 0) + 1 FROM participants`).Scan(&rank); err != nil {
				return err
			}
			p.CompletionRank = &rank
			completed = true
		}

		_, err = tx.Exec(ctx, `
			UPDATE participants
			SET correct_count = $2, last_activity_at = $3, completion_rank = $4
			WHERE id = $1`,
			p.ID, p.CorrectCount, p.LastActivityAt, p.CompletionRank)
		if err != nil {
			return err
		}

		result = domain.AnswerResult{
			Answer:      answer,
			Participant: p,
			Answered:    answered,
			CatalogSize: catalogSize,
			Completed:   completed,
		}
		return nil
	})
	if err != nil {
		return domain.AnswerResult{}, err
	}
	return result, nil
}

func (s *Store) Answers(ctx context.Context, participantID int64) ([]domain.Answer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, participant_id, question_id, choice, correct, answered_at
		FROM answers WHERE participant_id = $1
		ORDER BY answered_at, id`, participantID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", mapError(err))
	}
	defer rows.Close()

	var out []domain.Answer
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(&a.ID, &a.ParticipantID, &a.QuestionID, &a.Option, &a.Correct, &a.AnsweredAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) Eligible(ctx context.Context, catalogSize int) ([]domain.Participant, error) {
	return s.queryParticipants(ctx, `
		SELECT `+participantColumns+` FROM participants p
		WHERE (SELECT count(*) FROM answers a WHERE a.participant_id = p.id) = $1
		ORDER BY id`, catalogSize)
}

func (s *Store) RecordDraw(ctx context.Context, draw domain.Draw) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO draws (id, participant_id, drawn_at) VALUES ($1, $2, $3)`,
		draw.ID, draw.ParticipantID, draw.DrawnAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return domain.ErrParticipantNotFound
	}
	if err != nil {
		return fmt.Errorf("record draw: %w", mapError(err))
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM participants),
			(SELECT count(*) FROM participants WHERE completion_rank IS NOT NULL),
			(SELECT count(*) FROM answers)`,
	).Scan(&st.Participants, &st.Finished, &st.Answers)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("load stats: %w", mapError(err))
	}
	return st, nil
}

func (s *Store) queryParticipants(ctx context.Context, sql string, args ...interface{}) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", mapError(err))
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return mapError(err)
	}
	return mapError(tx.Commit(ctx))
}

func scanParticipant(row pgx.Row) (domain.Participant, error) {
	var p domain.Participant
	err := row.Scan(&p.ID, &p.Identity, &p.DisplayName, &p.Nickname,
		&p.RegisteredAt, &p.LastActivityAt, &p.CorrectCount, &p.CompletionRank)
	return p, err
}

// mapError turns serialization failures, deadlocks and rank collisions into
// domain.ErrStorageConflict; everything else passes through.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %s", domain.ErrStorageConflict, pgErr.Message)
		}
	}
	return err
}
