package services

import (
	"context"
	"time"

	"interchat_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoomServiceDB interface {
	// CreateRoom stores the room and makes the creator its first member.
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListRoomsForUser(ctx context.Context, userID uuid.UUID) ([]models.Room, error)
	AddMember(ctx context.Context, roomID, userID uuid.UUID) error
	IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
}

type DefaultRoomServiceDB struct {
	db *gorm.DB
}

func NewRoomServiceDB(db *gorm.DB) RoomServiceDB {
	return &DefaultRoomServiceDB{db: db}
}

func (s *DefaultRoomServiceDB) CreateRoom(ctx context.Context, room *models.Room) error {
	if room.ID == uuid.Nil {
		room.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		return tx.Create(&models.RoomMember{RoomID: room.ID, UserID: room.CreatedBy, JoinedAt: time.Now()}).Error
	})
}

func (s *DefaultRoomServiceDB) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var room models.Room
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *DefaultRoomServiceDB) ListRoomsForUser(ctx context.Context, userID uuid.UUID) ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.WithContext(ctx).
		Joins("JOIN room_members ON room_members.room_id = rooms.id").
		Where("room_members.user_id = ?", userID).
		Order("rooms.created_at DESC").
		Find(&rooms).Error
	return rooms, err
}

func (s *DefaultRoomServiceDB) AddMember(ctx context.Context, roomID, userID uuid.UUID) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.RoomMember{RoomID: roomID, UserID: userID, JoinedAt: time.Now()}).Error
}

func (s *DefaultRoomServiceDB) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}
