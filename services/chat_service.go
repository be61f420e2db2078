package services

import (
	"chat-gateway/contract"
	"chat-gateway/domain/chat"
	"chat-gateway/errors"
	"chat-gateway/moderation"
	"chat-gateway/repositories"
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultMessagesLimit = 100
	MaxMessagesLimit     = 1000
)

var (
	_ contract.IChatUseCase = (*ChatService)(nil)
	_ contract.IRoomQueries = (*ChatService)(nil)
)

// ChatService is the chat use case seen by live sessions, and the query
// surface exposed over HTTP. Content is moderated before it is stored.
type ChatService struct {
	log        *slog.Logger
	repository repositories.IChatRepository
	moderator  moderation.Moderator
	validate   *validator.Validate
}

func NewChatService(
	log *slog.Logger,
	repository repositories.IChatRepository,
	moderator moderation.Moderator,
) *ChatService {
	return &ChatService{
		log:        log,
		repository: repository,
		moderator:  moderator,
		validate:   validator.New(),
	}
}

// Seed makes sure the default room exists.
func (s *ChatService) Seed(ctx context.Context) error {
	_, err := s.repository.EnsureRoom(ctx, chat.DefaultRoomID, chat.DefaultRoomName)
	return err
}

func (s *ChatService) PersistMessage(ctx context.Context, cmd chat.PostMessageCommand) (chat.Message, error) {
	content, censored := s.moderator.Censor(cmd.Content)
	if len(censored) > 0 {
		s.log.Info("Message censored", "room_id", cmd.RoomID, "user_id", cmd.SenderID, "words", len(censored))
	}
	message := chat.NewMessage(cmd.RoomID, cmd.SenderID, content)
	if err := s.repository.SaveMessage(ctx, message); err != nil {
		return chat.Message{}, fmt.Errorf("save message: %w", err)
	}
	return message, nil
}

// GetRoomSnapshot returns nil, nil for an unknown room.
func (s *ChatService) GetRoomSnapshot(ctx context.Context, roomID chat.RoomID) (*chat.Room, error) {
	room, err := s.repository.GetRoom(ctx, roomID)
	if goerrors.Is(err, errors.ErrRoomNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *ChatService) GetRecentMessages(ctx context.Context, roomID chat.RoomID, limit int) ([]chat.Message, error) {
	return s.repository.GetMessages(ctx, roomID, clampLimit(limit))
}

func (s *ChatService) AddParticipant(ctx context.Context, roomID chat.RoomID, userID chat.UserID) error {
	return s.repository.AddParticipant(ctx, roomID, userID)
}

func (s *ChatService) RemoveParticipant(ctx context.Context, roomID chat.RoomID, userID chat.UserID) error {
	return s.repository.RemoveParticipant(ctx, roomID, userID)
}

func (s *ChatService) ListRooms(ctx context.Context) ([]chat.Room, error) {
	return s.repository.ListRooms(ctx)
}

func (s *ChatService) CreateRoom(ctx context.Context, cmd chat.CreateRoomCommand) (chat.Room, error) {
	cmd.Name = strings.TrimSpace(cmd.Name)
	if err := s.validate.Struct(cmd); err != nil {
		return chat.Room{}, fmt.Errorf("%w: %v", errors.ErrInvalidRoomName, err)
	}
	return s.repository.CreateRoom(ctx, cmd.Name)
}

// GetMessages answers the HTTP history query. An unknown room has no history,
// so it yields an empty list rather than an error.
func (s *ChatService) GetMessages(ctx context.Context, cmd chat.GetMessagesCommand) ([]chat.Message, error) {
	messages, err := s.repository.GetMessages(ctx, cmd.RoomID, clampLimit(cmd.Limit))
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	return messages, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultMessagesLimit
	case limit > MaxMessagesLimit:
		return MaxMessagesLimit
	default:
		return limit
	}
}
