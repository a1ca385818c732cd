package cart

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/numberpool/pkg/db/models"
)

// Repository exposes persistence operations for live cart lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a line at the end of its session's cart.
func (r *Repository) Create(ctx context.Context, line *models.CartLine) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int64
		err := tx.Model(&models.CartLine{}).
			Where("session_key = ?", line.SessionKey).
			Select("COALESCE(MAX(position), 0)").
			Scan(&last).Error
		if err != nil {
			return err
		}
		line.Position = last + 1
		now := time.Now().UTC()
		line.CreatedAt, line.UpdatedAt = now, now
		return tx.Create(line).Error
	})
}

// Save persists quantity and number changes of a line.
func (r *Repository) Save(ctx context.Context, line *models.CartLine) error {
	line.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("cart_key = ?", line.CartKey).
		Updates(map[string]any{
			"quantity":   line.Quantity,
			"numbers":    line.Numbers,
			"updated_at": line.UpdatedAt,
		}).Error
}

// Find returns the line of the session identified by cartKey, or nil.
func (r *Repository) Find(ctx context.Context, sessionKey, cartKey string) (*models.CartLine, error) {
	var line models.CartLine
	err := r.db.WithContext(ctx).
		Where("cart_key = ? AND session_key = ?", cartKey, sessionKey).
		First(&line).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// ListBySession returns a session's lines in the order they were added.
func (r *Repository) ListBySession(ctx context.Context, sessionKey string) ([]models.CartLine, error) {
	var lines []models.CartLine
	err := r.db.WithContext(ctx).
		Where("session_key = ?", sessionKey).
		Order("position ASC").
		Find(&lines).Error
	return lines, err
}

// SessionCartKeys returns the cart keys of one session's lines.
func (r *Repository) SessionCartKeys(ctx context.Context, sessionKey string) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("session_key = ?", sessionKey).
		Order("position ASC").
		Pluck("cart_key", &keys).Error
	return keys, err
}

// LiveCartKeys returns every cart key the actor currently owns.
func (r *Repository) LiveCartKeys(ctx context.Context, actorID string) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("actor_id = ?", actorID).
		Order("position ASC").
		Pluck("cart_key", &keys).Error
	return keys, err
}

// Delete removes a line. Deleting an absent line is not an error.
func (r *Repository) Delete(ctx context.Context, cartKey string) (int64, error) {
	res := r.db.WithContext(ctx).Where("cart_key = ?", cartKey).Delete(&models.CartLine{})
	return res.RowsAffected, res.Error
}

// DiscardSession empties a session's cart.
func (r *Repository) DiscardSession(ctx context.Context, sessionKey string) (int64, error) {
	res := r.db.WithContext(ctx).Where("session_key = ?", sessionKey).Delete(&models.CartLine{})
	return res.RowsAffected, res.Error
}

// DeleteActorLines removes every line the actor owns, across sessions.
func (r *Repository) DeleteActorLines(ctx context.Context, actorID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("actor_id = ?", actorID).Delete(&models.CartLine{})
	return res.RowsAffected, res.Error
}

// MoveSession appends a session's lines to another session and owner, keeping
// their relative order.
func (r *Repository) MoveSession(ctx context.Context, fromSessionKey, toSessionKey, toActorID string) (int64, error) {
	if fromSessionKey == toSessionKey {
		return 0, nil
	}
	var moved int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int64
		err := tx.Model(&models.CartLine{}).
			Where("session_key = ?", toSessionKey).
			Select("COALESCE(MAX(position), 0)").
			Scan(&last).Error
		if err != nil {
			return err
		}
		res := tx.Model(&models.CartLine{}).
			Where("session_key = ?", fromSessionKey).
			Updates(map[string]any{
				"session_key": toSessionKey,
				"actor_id":    toActorID,
				"position":    gorm.Expr("position + ?", last),
				"updated_at":  time.Now().UTC(),
			})
		moved = res.RowsAffected
		return res.Error
	})
	return moved, err
}
