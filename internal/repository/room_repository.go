package repository

import (
	"errors"
	"time"

	"github.com/JosueRDx/DotsGo-backend/internal/models"
)

// ErrVersionConflict is returned by Save when the room changed underneath
// the caller. Callers reload and retry.
var ErrVersionConflict = errors.New("room was modified concurrently")

type RoomRepository struct {
	db *Database
}

func NewRoomRepository(db *Database) *RoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Create(room *models.Room) error {
	return r.db.Create(room).Error
}

func (r *RoomRepository) FindByPIN(pin string) (*models.Room, error) {
	var room models.Room
	if err := r.db.First(&room, "pin = ?", models.NormalizePIN(pin)).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *RoomRepository) FindByID(id string) (*models.Room, error) {
	var room models.Room
	if err := r.db.First(&room, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// Save persists the aggregate only if nobody else saved it since it was
// loaded. On success the in-memory version is already bumped to match the
// row; on conflict the room is left untouched for the caller to reload.
func (r *RoomRepository) Save(room *models.Room) error {
	loaded := room.Version
	room.Version = loaded + 1

	res := r.db.Model(&models.Room{}).
		Where("id = ? AND version = ?", room.ID, loaded).
		Select("*").Omit("id", "created_at").
		Updates(room)
	if res.Error != nil {
		room.Version = loaded
		return res.Error
	}
	if res.RowsAffected == 0 {
		room.Version = loaded
		return ErrVersionConflict
	}
	return nil
}

func (r *RoomRepository) Delete(room *models.Room) error {
	return r.db.Delete(room).Error
}

// FindIdleSince lists rooms in any of the given statuses that have not
// been written since the threshold. Used by the cleanup sweep.
func (r *RoomRepository) FindIdleSince(statuses []string, threshold time.Time) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.
		Where("status IN ?", statuses).
		Where("updated_at < ?", threshold).
		Find(&rooms).Error
	if err != nil {
		return nil, err
	}
	return rooms, nil
}
