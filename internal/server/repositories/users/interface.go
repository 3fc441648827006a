// Package users persists user profiles and their reminder statistics.
package users

import (
	"context"

	"github.com/dmitrijs2005/remindsync/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Get(ctx context.Context, id string) (*models.User, error)
	ListWithPushToken(ctx context.Context) ([]*models.User, error)
	SetPushToken(ctx context.Context, id, token string) error
	// AdjustTotal adds delta to totalReminders (never below zero).
	AdjustTotal(ctx context.Context, id string, delta int) error
	// RecordCompletion increments completedReminders and advances the
	// daily streak for a completion on the given date.
	RecordCompletion(ctx context.Context, id, on string) error
}
