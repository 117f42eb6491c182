package messages

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/example/repochat/domain/chat"
	"gorm.io/gorm"
)

// DefaultHistoryLimit is the number of messages returned when no limit is given.
const DefaultHistoryLimit = 50

// MaxHistoryLimit caps a single history page.
const MaxHistoryLimit = 500

// Repository handles message persistence with GORM.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new Repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new message.
func (r *Repository) Create(ctx context.Context, msg *domain.Message) error {
	normalize(msg)
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// FindByID retrieves a message by its ID.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	if err := r.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find message: %w", err)
	}
	normalize(&msg)
	return &msg, nil
}

// UpdateByID applies patch to the message inside a transaction and returns
// the stored result.
func (r *Repository) UpdateByID(ctx context.Context, id string, patch domain.Patch) (*domain.Message, error) {
	var msg domain.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&msg, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		normalize(&msg)
		patch.Apply(&msg)
		return tx.Save(&msg).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	return &msg, nil
}

// DeleteByID removes a message.
func (r *Repository) DeleteByID(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&domain.Message{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// History returns up to limit messages of a repository, oldest first.
func (r *Repository) History(ctx context.Context, repoID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)

	var msgs []domain.Message
	err := r.db.WithContext(ctx).
		Where("repo_id = ?", repoID).
		Order("created_at ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	for i := range msgs {
		normalize(&msgs[i])
	}
	return msgs, nil
}

// normalize keeps list fields as empty arrays rather than null on the wire.
func normalize(msg *domain.Message) {
	if msg.Reactions == nil {
		msg.Reactions = []domain.Reaction{}
	}
	if msg.ReadBy == nil {
		msg.ReadBy = []domain.ReadReceipt{}
	}
}
