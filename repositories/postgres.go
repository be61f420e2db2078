package repositories

import (
	"chat-gateway/domain/chat"
	"chat-gateway/errors"
	"context"
	"embed"
	goerrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresChatRepository is the IChatRepository used when the gateway runs
// with STORE_DRIVER=postgres.
type PostgresChatRepository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresPool opens a pool on url, capped at maxConns when positive.
func NewPostgresPool(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func NewPostgresChatRepository(pool *pgxpool.Pool, log *slog.Logger) PostgresChatRepository {
	return PostgresChatRepository{pool: pool, log: log}
}

// RunMigrations applies every embedded .sql file in name order.
// Statements are idempotent, so this runs at every start.
func (p PostgresChatRepository) RunMigrations(ctx context.Context) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return err
		}
		if _, err := p.pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		p.log.Info("Migration applied", "file", e.Name())
	}
	return nil
}

func (p PostgresChatRepository) SaveMessage(ctx context.Context, message chat.Message) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, room_id, sender, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, message.ID.String(), string(message.RoomID), string(message.SenderID), message.Content, message.Timestamp)
	return err
}

func (p PostgresChatRepository) GetMessages(ctx context.Context, roomID chat.RoomID, limit int) ([]chat.Message, error) {
	messages := make([]chat.Message, 0)
	if limit <= 0 {
		return messages, nil
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, room_id, sender, content, created_at
		FROM chat_messages
		WHERE room_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, string(roomID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, room, sender, content string
			at                        time.Time
		)
		if err := rows.Scan(&id, &room, &sender, &content, &at); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		messages = append(messages, chat.Message{
			ID:        parsed,
			RoomID:    chat.RoomID(room),
			SenderID:  chat.UserID(sender),
			Content:   content,
			Timestamp: at.UTC(),
		})
	}
	return messages, rows.Err()
}

const selectRooms = `
	SELECT r.id, r.name, r.created_at,
	       COALESCE(array_agg(p.user_id ORDER BY p.joined_at) FILTER (WHERE p.user_id IS NOT NULL), '{}')
	FROM chat_rooms r
	LEFT JOIN chat_room_participants p ON p.room_id = r.id
`

func scanRoom(row pgx.Row) (chat.Room, error) {
	var (
		id, name     string
		createdAt    time.Time
		participants []string
	)
	if err := row.Scan(&id, &name, &createdAt, &participants); err != nil {
		return chat.Room{}, err
	}
	return chat.Room{
		ID:           chat.RoomID(id),
		Name:         name,
		CreatedAt:    createdAt.UTC(),
		Participants: lo.Map(participants, func(p string, _ int) chat.UserID { return chat.UserID(p) }),
	}, nil
}

func (p PostgresChatRepository) GetRoom(ctx context.Context, roomID chat.RoomID) (chat.Room, error) {
	room, err := scanRoom(p.pool.QueryRow(ctx, selectRooms+`
		WHERE r.id = $1
		GROUP BY r.id
	`, string(roomID)))
	if goerrors.Is(err, pgx.ErrNoRows) {
		return chat.Room{}, fmt.Errorf("%w: %s", errors.ErrRoomNotFound, roomID)
	}
	return room, err
}

func (p PostgresChatRepository) CreateRoom(ctx context.Context, name string) (chat.Room, error) {
	room := chat.Room{ID: chat.RoomID(uuid.NewString()), Name: name, Participants: []chat.UserID{}}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO chat_rooms (id, name) VALUES ($1, $2) RETURNING created_at
	`, string(room.ID), name).Scan(&room.CreatedAt)
	room.CreatedAt = room.CreatedAt.UTC()
	return room, err
}

func (p PostgresChatRepository) EnsureRoom(ctx context.Context, roomID chat.RoomID, name string) (chat.Room, error) {
	if _, err := p.pool.Exec(ctx, `
		INSERT INTO chat_rooms (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING
	`, string(roomID), name); err != nil {
		return chat.Room{}, err
	}
	return p.GetRoom(ctx, roomID)
}

// AddParticipant creates the room on the fly, named after its id.
func (p PostgresChatRepository) AddParticipant(ctx context.Context, roomID chat.RoomID, userID chat.UserID) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO chat_rooms (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING
		`, string(roomID), defaultRoomName(roomID)); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO chat_room_participants (room_id, user_id) VALUES ($1, $2)
			ON CONFLICT (room_id, user_id) DO NOTHING
		`, string(roomID), string(userID))
		return err
	})
}

func (p PostgresChatRepository) RemoveParticipant(ctx context.Context, roomID chat.RoomID, userID chat.UserID) error {
	_, err := p.pool.Exec(ctx, `
		DELETE FROM chat_room_participants WHERE room_id = $1 AND user_id = $2
	`, string(roomID), string(userID))
	return err
}

func (p PostgresChatRepository) ListRooms(ctx context.Context) ([]chat.Room, error) {
	rows, err := p.pool.Query(ctx, selectRooms+`
		GROUP BY r.id
		ORDER BY r.created_at, r.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]chat.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}
