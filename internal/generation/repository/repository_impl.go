package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	generationdomain "github.com/smallbiznis/creditgate/internal/generation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() generationdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, task *generationdomain.Task) error {
	return db.WithContext(ctx).Create(task).Error
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, id snowflake.ID) (*generationdomain.Task, error) {
	var task generationdomain.Task
	err := db.WithContext(ctx).Where("id = ?", id).Take(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, generationdomain.ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (r *repo) MarkSuccess(ctx context.Context, db *gorm.DB, id snowflake.ID, assetURL string, charged int64, at time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE generation_tasks
		SET status = ?, asset_url = ?, charged_credits = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		generationdomain.TaskStatusSuccess,
		assetURL,
		charged,
		at,
		id,
		generationdomain.TaskStatusPending,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return generationdomain.ErrTaskNotPending
	}
	return nil
}

func (r *repo) MarkError(ctx context.Context, db *gorm.DB, id snowflake.ID, kind generationdomain.ErrorKind, message string, at time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE generation_tasks
		SET status = ?, error_kind = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		generationdomain.TaskStatusError,
		kind,
		message,
		at,
		id,
		generationdomain.TaskStatusPending,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return generationdomain.ErrTaskNotPending
	}
	return nil
}
