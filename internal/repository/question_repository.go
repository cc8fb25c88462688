package repository

import (
	"github.com/JosueRDx/DotsGo-backend/internal/models"
)

type QuestionRepository struct {
	db *Database
}

func NewQuestionRepository(db *Database) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// FindByIDs loads the given catalog entries. Callers compare lengths to
// detect unknown ids; order is not preserved.
func (r *QuestionRepository) FindByIDs(ids []string) ([]models.Question, error) {
	var questions []models.Question
	if len(ids) == 0 {
		return questions, nil
	}
	if err := r.db.Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

// RandomSet draws n distinct questions from the catalog.
func (r *QuestionRepository) RandomSet(n int) ([]models.Question, error) {
	var questions []models.Question
	if err := r.db.Order("RANDOM()").Limit(n).Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

// Count reports the catalog size.
func (r *QuestionRepository) Count() (int64, error) {
	var n int64
	if err := r.db.Model(&models.Question{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
