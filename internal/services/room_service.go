package services

import (
	"context"
	"errors"
	"strings"

	apperrors "interchat_go_backend/internal/errors"
	"interchat_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RoomService struct {
	db         RoomServiceDB
	demoRoomID uuid.UUID
}

func NewRoomService(db RoomServiceDB, demoRoomID uuid.UUID) *RoomService {
	return &RoomService{db: db, demoRoomID: demoRoomID}
}

func (s *RoomService) CreateRoom(ctx context.Context, caller *models.User, name, defaultLanguage string) (*models.Room, error) {
	if caller.IsAnonymous {
		return nil, apperrors.New403Error("Sign in to create rooms")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.New400Error("Room name is required")
	}
	if defaultLanguage == "" {
		defaultLanguage = caller.PreferredLanguage
	}
	room := &models.Room{
		Name:            name,
		DefaultLanguage: NormalizeLanguage(defaultLanguage),
		CreatedBy:       caller.ID,
	}
	if err := s.db.CreateRoom(ctx, room); err != nil {
		return nil, apperrors.New500Error(err)
	}
	return room, nil
}

// ListRooms returns the caller's rooms. Guests only see the demo room.
func (s *RoomService) ListRooms(ctx context.Context, caller *models.User) ([]models.Room, error) {
	if caller.IsAnonymous {
		if s.demoRoomID == uuid.Nil {
			return []models.Room{}, nil
		}
		room, err := s.db.GetRoom(ctx, s.demoRoomID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []models.Room{}, nil
		}
		if err != nil {
			return nil, apperrors.New500Error(err)
		}
		return []models.Room{*room}, nil
	}
	rooms, err := s.db.ListRoomsForUser(ctx, caller.ID)
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	return rooms, nil
}

func (s *RoomService) JoinRoom(ctx context.Context, caller *models.User, roomID uuid.UUID) (*models.Room, error) {
	if caller.IsAnonymous {
		return nil, apperrors.New403Error("Sign in to join rooms")
	}
	room, err := s.db.GetRoom(ctx, roomID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New404Error("Room not found")
	}
	if err != nil {
		return nil, apperrors.New500Error(err)
	}
	if err := s.db.AddMember(ctx, room.ID, caller.ID); err != nil {
		return nil, apperrors.New500Error(err)
	}
	return room, nil
}
