package services

import (
	"context"
	"database/sql"
	"strings"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
	"github.com/dmitrijs2005/remindsync/internal/server/repositories/repomanager"
)

// UserService manages profiles: push tokens and reminder statistics.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager) *UserService {
	return &UserService{db: db, repomanager: m}
}

// Register creates a user with an optional push token.
func (s *UserService) Register(ctx context.Context, pushToken string) (*models.User, error) {
	return s.repomanager.Users(s.db).Create(ctx, &models.User{PushToken: strings.TrimSpace(pushToken)})
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.repomanager.Users(s.db).Get(ctx, id)
}

// SetPushToken replaces the user's token; an empty token opts out of pushes.
func (s *UserService) SetPushToken(ctx context.Context, id, token string) error {
	if id == "" {
		return common.NewValidationError("userId", "required")
	}
	return s.repomanager.Users(s.db).SetPushToken(ctx, id, strings.TrimSpace(token))
}
