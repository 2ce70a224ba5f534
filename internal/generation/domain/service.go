package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	GenerateText(ctx context.Context, userID snowflake.ID, req TextRequest) (*TextResponse, error)
	SubmitImage(ctx context.Context, userID snowflake.ID, req AssetRequest) (*Task, error)
	Submit3D(ctx context.Context, userID snowflake.ID, req AssetRequest) (*Task, error)
	GetTask(ctx context.Context, userID, taskID snowflake.ID) (*Task, error)
}

// MaxImageCount caps the images of one request.
const MaxImageCount = 10

var (
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidModel    = errors.New("invalid_model")
	ErrInvalidMessages = errors.New("invalid_messages")
	ErrInvalidPrompt   = errors.New("invalid_prompt")
	ErrInvalidCount    = errors.New("invalid_count")
	ErrUnknownProvider = errors.New("unknown_provider")
	ErrTaskNotFound    = errors.New("task_not_found")
	ErrTaskNotPending  = errors.New("task_not_pending")
	ErrShuttingDown    = errors.New("generation_shutting_down")
)
