package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/mimic/internal/game/room"
)

const roomColumns = `id, rounds, timer, participants, current_turn, current_emoji, game_state, created_at`

// RoomRepository is a room.Store backed by the rooms table.
//
// Update runs in a transaction holding a row lock (SELECT ... FOR UPDATE),
// so concurrent updates to one room are applied one after another.
type RoomRepository struct {
	db *pgxpool.Pool
}

// NewRoomRepository creates a RoomRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

// Create inserts a new room.
//
// Precondition: r must satisfy Validate.
// Postcondition: Returns room.ErrRoomExists if the id is taken.
func (s *RoomRepository) Create(ctx context.Context, r *room.Room) error {
	if err := r.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO rooms (`+roomColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.Rounds, r.Timer, participantsOrEmpty(r.Participants),
		nullIfEmpty(r.CurrentTurn), nullIfEmpty(r.CurrentEmoji), string(r.GameState), r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return room.ErrRoomExists
		}
		return fmt.Errorf("inserting room %s: %w", r.ID, err)
	}
	return nil
}

// Get retrieves a room by id.
//
// Postcondition: Returns room.ErrRoomNotFound if no row matches.
func (s *RoomRepository) Get(ctx context.Context, id string) (*room.Room, error) {
	r, err := scanRoom(s.db.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, room.ErrRoomNotFound
		}
		return nil, fmt.Errorf("querying room %s: %w", id, err)
	}
	return r, nil
}

// Update applies fn to the locked row and writes the result back when fn
// reports a change.
//
// Postcondition: The stored room satisfies Validate. On any error the
// transaction is rolled back.
func (s *RoomRepository) Update(ctx context.Context, id string, fn room.Mutation) (*room.Room, error) {
	var out *room.Room
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		r, err := scanRoom(tx.QueryRow(ctx,
			`SELECT `+roomColumns+` FROM rooms WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return room.ErrRoomNotFound
			}
			return fmt.Errorf("locking room %s: %w", id, err)
		}

		changed, err := fn(r)
		if err != nil {
			return err
		}
		out = r
		if !changed {
			return nil
		}
		if err := r.Validate(); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE rooms
			 SET participants = $2, current_turn = $3, current_emoji = $4,
			     game_state = $5, updated_at = NOW()
			 WHERE id = $1`,
			id, participantsOrEmpty(r.Participants),
			nullIfEmpty(r.CurrentTurn), nullIfEmpty(r.CurrentEmoji), string(r.GameState),
		)
		if err != nil {
			return fmt.Errorf("updating room %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns every room, oldest first.
func (s *RoomRepository) List(ctx context.Context) ([]*room.Room, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+roomColumns+` FROM rooms ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	defer rows.Close()

	var out []*room.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rooms: %w", err)
	}
	return out, nil
}

func scanRoom(row pgx.Row) (*room.Room, error) {
	var (
		r            room.Room
		currentTurn  *string
		currentEmoji *string
		state        string
	)
	if err := row.Scan(&r.ID, &r.Rounds, &r.Timer, &r.Participants,
		&currentTurn, &currentEmoji, &state, &r.CreatedAt); err != nil {
		return nil, err
	}
	if currentTurn != nil {
		r.CurrentTurn = *currentTurn
	}
	if currentEmoji != nil {
		r.CurrentEmoji = *currentEmoji
	}
	if r.Participants == nil {
		r.Participants = []string{}
	}
	r.GameState = room.State(state)
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func participantsOrEmpty(p []string) []string {
	if p == nil {
		return []string{}
	}
	return p
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
