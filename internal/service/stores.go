// internal/service/stores.go

package service

import (
	"time"

	"github.com/JosueRDx/DotsGo-backend/internal/models"
)

// RoomStore is the persistence contract for the room aggregate. Save must
// fail with repository.ErrVersionConflict when the stored version no
// longer matches the loaded one.
type RoomStore interface {
	Create(room *models.Room) error
	FindByPIN(pin string) (*models.Room, error)
	FindByID(id string) (*models.Room, error)
	Save(room *models.Room) error
	Delete(room *models.Room) error
	FindIdleSince(statuses []string, threshold time.Time) ([]models.Room, error)
}

// QuestionStore reads the placard catalog.
type QuestionStore interface {
	FindByIDs(ids []string) ([]models.Question, error)
	RandomSet(n int) ([]models.Question, error)
	Count() (int64, error)
}
