package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditgate/internal/clock"
	"github.com/smallbiznis/creditgate/internal/config"
	creditdomain "github.com/smallbiznis/creditgate/internal/credit/domain"
	generationdomain "github.com/smallbiznis/creditgate/internal/generation/domain"
	"github.com/smallbiznis/creditgate/internal/generation/provider"
	ledgerdomain "github.com/smallbiznis/creditgate/internal/ledger/domain"
	obscontext "github.com/smallbiznis/creditgate/internal/observability/context"
	obsmetrics "github.com/smallbiznis/creditgate/internal/observability/metrics"
	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultTimeout = 5 * time.Minute

	recordAttempts = 3
	recordBackoff  = 25 * time.Millisecond

	statusSuccess = "success"
	statusError   = "error"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       generationdomain.Repository
	Credits    creditdomain.Service
	Pricing    pricingdomain.Resolver
	Providers  *provider.Registry
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       generationdomain.Repository
	credits    creditdomain.Service
	pricing    pricingdomain.Resolver
	providers  *provider.Registry
	obsMetrics *obsmetrics.Metrics
	timeout    time.Duration

	mu       sync.Mutex
	closed   bool
	jobs     sync.WaitGroup
	shutdown context.Context
	stop     context.CancelFunc
}

func NewService(p Params) *Service {
	timeout := p.Cfg.Generation.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	shutdown, stop := context.WithCancel(context.Background())
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("generation.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		credits:    p.Credits,
		pricing:    p.Pricing,
		providers:  p.Providers,
		obsMetrics: p.ObsMetrics,
		timeout:    timeout,
		shutdown:   shutdown,
		stop:       stop,
	}
}

// GenerateText runs a completion synchronously: it prices the worst case,
// checks the allowance, calls the provider and charges the actual usage.
func (s *Service) GenerateText(ctx context.Context, userID snowflake.ID, req generationdomain.TextRequest) (*generationdomain.TextResponse, error) {
	if userID == 0 {
		return nil, generationdomain.ErrInvalidUser
	}
	if len(req.Messages) == 0 {
		return nil, generationdomain.ErrInvalidMessages
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return nil, generationdomain.ErrInvalidModel
	}
	if req.MaxOutputTokens < 0 {
		return nil, generationdomain.ErrInvalidCount
	}
	p, err := s.providers.Lookup(req.Provider)
	if err != nil {
		return nil, err
	}
	req.Model = model

	ctx, correlationID := obscontext.EnsureCorrelationID(ctx)
	pricing := s.pricing.Resolve(ctx, p.Name(), model)
	estimate := pricingdomain.EstimateTextCredits(req.Messages, req.MaxOutputTokens, pricing)

	allowance, err := s.credits.EnsureAllowance(ctx, creditdomain.AllowanceRequest{
		UserID:          userID,
		RequiredCredits: estimate,
	})
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result, err := p.GenerateText(callCtx, req)
	if err == nil {
		err = callCtx.Err()
	}
	if err != nil {
		kind, message := generationdomain.ClassifyError(err)
		s.log.Warn("text generation failed",
			zap.String("provider", p.Name()),
			zap.String("model", model),
			zap.String("error_kind", string(kind)),
			zap.String("correlation_id", correlationID),
			zap.String("error", message),
		)
		s.obsMetrics.RecordGeneration(ctx, p.Name(), string(ledgerdomain.UsageTypeText), statusError)
		return nil, asProviderError(err, kind, message)
	}

	credits := pricingdomain.CalculateTextCredits(result.Usage, pricing)
	charge, err := s.credits.Charge(ctx, creditdomain.ChargeRequest{
		Credits:        credits,
		OrganizationID: allowance.OrganizationID,
		UserID:         userID,
		Usage: creditdomain.Usage{
			CountUsed: result.Usage.InputTokens + result.Usage.OutputTokens,
			Model:     model,
			Provider:  p.Name(),
			UsageType: ledgerdomain.UsageTypeText,
			Metadata: map[string]any{
				"input_tokens":        result.Usage.InputTokens,
				"cached_input_tokens": result.Usage.CachedInputTokens,
				"output_tokens":       result.Usage.OutputTokens,
				"estimated_credits":   estimate,
				"correlation_id":      correlationID,
			},
		},
	}, allowance)
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordGeneration(ctx, p.Name(), string(ledgerdomain.UsageTypeText), statusSuccess)
	return &generationdomain.TextResponse{
		Content:          result.Content,
		Provider:         p.Name(),
		Model:            model,
		Usage:            result.Usage,
		EstimatedCredits: estimate,
		Credits:          credits,
		Balance:          charge.Balance,
		UsageID:          charge.UsageID,
		CorrelationID:    correlationID,
	}, nil
}

// SubmitImage checks the allowance for Count images and starts the job.
func (s *Service) SubmitImage(ctx context.Context, userID snowflake.ID, req generationdomain.AssetRequest) (*generationdomain.Task, error) {
	if req.Count == 0 {
		req.Count = 1
	}
	if req.Count < 0 || req.Count > generationdomain.MaxImageCount {
		return nil, generationdomain.ErrInvalidCount
	}
	return s.submit(ctx, userID, ledgerdomain.UsageTypeImage, req)
}

// Submit3D checks the allowance for one 3D model and starts the job.
func (s *Service) Submit3D(ctx context.Context, userID snowflake.ID, req generationdomain.AssetRequest) (*generationdomain.Task, error) {
	req.Count = 1
	return s.submit(ctx, userID, ledgerdomain.UsageTypeThreeD, req)
}

// GetTask returns a task owned by userID.
func (s *Service) GetTask(ctx context.Context, userID, taskID snowflake.ID) (*generationdomain.Task, error) {
	if userID == 0 {
		return nil, generationdomain.ErrInvalidUser
	}
	task, err := s.repo.Get(ctx, s.db, taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, generationdomain.ErrTaskNotFound
	}
	return task, nil
}

// Shutdown cancels running jobs and waits for them to record their outcome.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()
	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every submitted job finished.
func (s *Service) Wait() {
	s.jobs.Wait()
}

func (s *Service) submit(ctx context.Context, userID snowflake.ID, usageType ledgerdomain.UsageType, req generationdomain.AssetRequest) (*generationdomain.Task, error) {
	if userID == 0 {
		return nil, generationdomain.ErrInvalidUser
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return nil, generationdomain.ErrInvalidPrompt
	}
	req.Model = strings.TrimSpace(req.Model)
	if req.Model == "" {
		return nil, generationdomain.ErrInvalidModel
	}
	p, err := s.providers.Lookup(req.Provider)
	if err != nil {
		return nil, err
	}

	ctx, correlationID := obscontext.EnsureCorrelationID(ctx)
	pricing := s.pricing.Resolve(ctx, p.Name(), req.Model)
	required := assetCredits(usageType, req.Count, pricing)

	allowance, err := s.credits.EnsureAllowance(ctx, creditdomain.AllowanceRequest{
		UserID:          userID,
		RequiredCredits: required,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	task := &generationdomain.Task{
		ID:               s.genID.Generate(),
		OrganizationID:   allowance.OrganizationID,
		UserID:           userID,
		Provider:         p.Name(),
		Model:            req.Model,
		UsageType:        usageType,
		Status:           generationdomain.TaskStatusPending,
		EstimatedCredits: required,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// Add must not race with Shutdown's Wait
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, generationdomain.ErrShuttingDown
	}
	s.jobs.Add(1)
	s.mu.Unlock()

	if err := s.repo.Insert(ctx, s.db, task); err != nil {
		s.jobs.Done()
		return nil, err
	}

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	release := context.AfterFunc(s.shutdown, cancel)

	go func() {
		defer s.jobs.Done()
		defer release()
		defer cancel()
		s.run(jobCtx, job{
			task:          *task,
			request:       req,
			provider:      p,
			pricing:       pricing,
			allowance:     allowance,
			correlationID: correlationID,
		})
	}()

	s.log.Info("generation task submitted",
		zap.String("task_id", task.ID.String()),
		zap.String("usage_type", string(usageType)),
		zap.String("provider", p.Name()),
		zap.Int64("estimated_credits", required),
		zap.String("correlation_id", correlationID),
	)
	return task, nil
}

type job struct {
	task          generationdomain.Task
	request       generationdomain.AssetRequest
	provider      generationdomain.Provider
	pricing       *pricingdomain.Pricing
	allowance     *creditdomain.AllowanceContext
	correlationID string
}

func (s *Service) run(ctx context.Context, j job) {
	usageType := string(j.task.UsageType)

	if err := ctx.Err(); err != nil {
		s.fail(ctx, j, err)
		return
	}

	var (
		result *generationdomain.AssetResult
		err    error
	)
	switch j.task.UsageType {
	case ledgerdomain.UsageTypeThreeD:
		result, err = j.provider.Generate3D(ctx, j.request)
	default:
		result, err = j.provider.GenerateImage(ctx, j.request)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err == nil && (result == nil || strings.TrimSpace(result.AssetURL) == "") {
		err = &generationdomain.ProviderError{Kind: generationdomain.ErrorKindServerError, Message: "empty asset"}
	}
	if err != nil {
		s.fail(ctx, j, err)
		return
	}

	count := result.Count
	if count <= 0 || count > j.request.Count {
		count = j.request.Count
	}
	credits := assetCredits(j.task.UsageType, count, j.pricing)

	// outlive the job deadline so the outcome is always recorded
	persistCtx := context.WithoutCancel(ctx)
	_, err = s.credits.Charge(persistCtx, creditdomain.ChargeRequest{
		Credits:        credits,
		OrganizationID: j.task.OrganizationID,
		UserID:         j.task.UserID,
		Usage: creditdomain.Usage{
			CountUsed: count,
			Model:     j.task.Model,
			Provider:  j.task.Provider,
			UsageType: j.task.UsageType,
			Metadata: map[string]any{
				"task_id":           j.task.ID.String(),
				"asset_url":         result.AssetURL,
				"estimated_credits": j.task.EstimatedCredits,
				"correlation_id":    j.correlationID,
			},
		},
	}, j.allowance)
	if err != nil {
		s.fail(ctx, j, err)
		return
	}

	if err := s.recordSuccess(persistCtx, j, result.AssetURL, credits); err != nil {
		s.log.Error("record task success failed",
			zap.String("task_id", j.task.ID.String()),
			zap.Int64("credits", credits),
			zap.Error(err),
		)
		message := fmt.Sprintf("charged %d credits but the result could not be recorded", credits)
		if err := s.repo.MarkError(persistCtx, s.db, j.task.ID, generationdomain.ErrorKindServerError, message, s.clock.Now()); err != nil {
			s.log.Error("record task error failed", zap.String("task_id", j.task.ID.String()), zap.Error(err))
		}
		s.obsMetrics.RecordGeneration(persistCtx, j.task.Provider, usageType, statusError)
		return
	}
	s.obsMetrics.RecordGeneration(persistCtx, j.task.Provider, usageType, statusSuccess)
	s.log.Info("generation task succeeded",
		zap.String("task_id", j.task.ID.String()),
		zap.Int64("credits", credits),
		zap.String("correlation_id", j.correlationID),
	)
}

// recordSuccess retries MarkSuccess; the charge is already committed.
func (s *Service) recordSuccess(ctx context.Context, j job, assetURL string, credits int64) error {
	var err error
	for attempt := 1; attempt <= recordAttempts; attempt++ {
		err = s.repo.MarkSuccess(ctx, s.db, j.task.ID, assetURL, credits, s.clock.Now())
		if err == nil || errors.Is(err, generationdomain.ErrTaskNotPending) {
			return err
		}
		if attempt < recordAttempts {
			time.Sleep(time.Duration(attempt) * recordBackoff)
		}
	}
	return err
}

func (s *Service) fail(ctx context.Context, j job, cause error) {
	persistCtx := context.WithoutCancel(ctx)
	kind, message := generationdomain.ClassifyError(cause)

	if err := s.repo.MarkError(persistCtx, s.db, j.task.ID, kind, message, s.clock.Now()); err != nil {
		s.log.Error("record task error failed", zap.String("task_id", j.task.ID.String()), zap.Error(err))
	}
	s.obsMetrics.RecordGeneration(persistCtx, j.task.Provider, string(j.task.UsageType), statusError)
	s.log.Warn("generation task failed",
		zap.String("task_id", j.task.ID.String()),
		zap.String("error_kind", string(kind)),
		zap.String("correlation_id", j.correlationID),
		zap.Error(cause),
	)
}

func assetCredits(usageType ledgerdomain.UsageType, count int64, pricing *pricingdomain.Pricing) int64 {
	if usageType == ledgerdomain.UsageTypeThreeD {
		return pricingdomain.Calculate3DCredits(count, pricing)
	}
	return pricingdomain.CalculateImageCredits(count, pricing)
}

func asProviderError(err error, kind generationdomain.ErrorKind, message string) error {
	var providerErr *generationdomain.ProviderError
	if errors.As(err, &providerErr) {
		return providerErr
	}
	return &generationdomain.ProviderError{Kind: kind, Message: message, Err: err}
}
