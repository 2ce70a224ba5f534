package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, task *Task) error
	Get(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Task, error)
	MarkSuccess(ctx context.Context, db *gorm.DB, id snowflake.ID, assetURL string, charged int64, at time.Time) error
	MarkError(ctx context.Context, db *gorm.DB, id snowflake.ID, kind ErrorKind, message string, at time.Time) error
}
