package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditgate/internal/clock"
	creditdomain "github.com/smallbiznis/creditgate/internal/credit/domain"
	ledgerdomain "github.com/smallbiznis/creditgate/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/creditgate/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/creditgate/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const reasonAllowed = "allowed"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       ledgerdomain.Repository
	Orgs       creditdomain.OrganizationDirectory
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       ledgerdomain.Repository
	orgs       creditdomain.OrganizationDirectory
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) creditdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("credit.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		orgs:       p.Orgs,
		obsMetrics: p.ObsMetrics,
	}
}

// EnsureAllowance checks that the user's organization can cover
// RequiredCredits and that the member stays within their quota. It reserves
// nothing.
func (s *Service) EnsureAllowance(ctx context.Context, req creditdomain.AllowanceRequest) (*creditdomain.AllowanceContext, error) {
	if req.UserID == 0 {
		return nil, creditdomain.ErrInvalidUser
	}
	if req.RequiredCredits < 0 {
		return nil, creditdomain.ErrInvalidAmount
	}

	orgID, err := s.resolveOrganization(ctx, req.UserID)
	if err != nil {
		s.recordDenial(ctx, err)
		return nil, err
	}

	credit, quota, err := s.ensureRows(ctx, s.db, orgID, req.UserID)
	if err != nil {
		return nil, err
	}

	if credit.Balance < req.RequiredCredits {
		s.log.Debug("allowance denied",
			zap.String("organization_id", orgID.String()),
			zap.String("user_id", req.UserID.String()),
			zap.Int64("balance", credit.Balance),
			zap.Int64("required", req.RequiredCredits),
		)
		s.recordDenial(ctx, creditdomain.ErrOrganizationCreditInsufficient)
		return nil, creditdomain.ErrOrganizationCreditInsufficient
	}
	if quota.Limit != nil && quota.Used+req.RequiredCredits > *quota.Limit {
		s.log.Debug("allowance denied",
			zap.String("organization_id", orgID.String()),
			zap.String("user_id", req.UserID.String()),
			zap.Int64("used", quota.Used),
			zap.Int64("limit", *quota.Limit),
			zap.Int64("required", req.RequiredCredits),
		)
		s.recordDenial(ctx, creditdomain.ErrMemberQuotaExceeded)
		return nil, creditdomain.ErrMemberQuotaExceeded
	}

	s.obsMetrics.RecordAllowanceCheck(ctx, reasonAllowed)
	return &creditdomain.AllowanceContext{
		OrganizationID:  orgID,
		UserID:          req.UserID,
		RequiredCredits: req.RequiredCredits,
	}, nil
}

// Charge debits the organization, accrues member usage and records the usage
// with its transaction in one database transaction. The balance may go
// negative.
func (s *Service) Charge(ctx context.Context, req creditdomain.ChargeRequest, allowance *creditdomain.AllowanceContext) (*creditdomain.ChargeResult, error) {
	if allowance == nil ||
		allowance.OrganizationID != req.OrganizationID ||
		allowance.UserID != req.UserID {
		return nil, creditdomain.ErrAllowanceMismatch
	}
	if req.Credits < 0 {
		return nil, creditdomain.ErrInvalidAmount
	}
	if !req.Usage.UsageType.Valid() {
		return nil, creditdomain.ErrInvalidUsageType
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = string(req.Usage.UsageType) + "_generation"
	}

	now := s.clock.Now()
	usage := ledgerdomain.ModelUsage{
		ID:             s.genID.Generate(),
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		Provider:       req.Usage.Provider,
		Model:          req.Usage.Model,
		UsageType:      req.Usage.UsageType,
		CountUsed:      req.Usage.CountUsed,
		Metadata:       req.Usage.Metadata,
		CreatedAt:      now,
	}
	txn := ledgerdomain.ModelCreditTransaction{
		ID:             s.genID.Generate(),
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		Amount:         -req.Credits,
		Reason:         reason,
		UsageID:        &usage.ID,
		CreatedAt:      now,
	}

	result := &creditdomain.ChargeResult{UsageID: usage.ID, TransactionID: txn.ID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.AdjustBalance(ctx, tx, req.OrganizationID, -req.Credits); err != nil {
			return err
		}
		if err := s.repo.IncrementUsed(ctx, tx, req.OrganizationID, req.UserID, req.Credits); err != nil {
			return err
		}
		if err := s.repo.InsertUsage(ctx, tx, &usage); err != nil {
			return err
		}
		if err := s.repo.InsertTransaction(ctx, tx, &txn); err != nil {
			return err
		}

		credit, err := s.repo.GetCredit(ctx, tx, req.OrganizationID)
		if err != nil {
			return err
		}
		quota, err := s.repo.GetQuota(ctx, tx, req.OrganizationID, req.UserID)
		if err != nil {
			return err
		}
		result.Balance = credit.Balance
		result.Used = quota.Used
		return nil
	})
	if err != nil {
		s.log.Error("charge failed",
			zap.String("organization_id", req.OrganizationID.String()),
			zap.String("user_id", req.UserID.String()),
			zap.Int64("credits", req.Credits),
			zap.Error(err),
		)
		return nil, err
	}

	s.obsMetrics.RecordCreditsCharged(ctx, req.Usage.Provider, string(req.Usage.UsageType), req.Credits)
	s.log.Info("credits charged",
		zap.String("organization_id", req.OrganizationID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.String("usage_type", string(req.Usage.UsageType)),
		zap.Int64("credits", req.Credits),
		zap.Int64("balance", result.Balance),
	)
	return result, nil
}

func (s *Service) GetUserSummary(ctx context.Context, userID snowflake.ID) (*creditdomain.UserSummary, error) {
	if userID == 0 {
		return nil, creditdomain.ErrInvalidUser
	}
	orgID, err := s.resolveOrganization(ctx, userID)
	if err != nil {
		return nil, err
	}
	credit, quota, err := s.ensureRows(ctx, s.db, orgID, userID)
	if err != nil {
		return nil, err
	}
	return &creditdomain.UserSummary{
		OrganizationID: orgID,
		Balance:        credit.Balance,
		Quota:          toMemberQuota(quota),
	}, nil
}

func (s *Service) GetBalance(ctx context.Context, orgID snowflake.ID) (*creditdomain.Balance, error) {
	if orgID == 0 {
		return nil, creditdomain.ErrInvalidOrganization
	}
	if err := s.repo.EnsureCredit(ctx, s.db, s.genID.Generate(), orgID); err != nil {
		return nil, err
	}
	credit, err := s.repo.GetCredit(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	return toBalance(credit), nil
}

// SetBalance overwrites the balance and records the difference as an
// admin_set transaction.
func (s *Service) SetBalance(ctx context.Context, orgID, actorID snowflake.ID, balance int64) (*creditdomain.Balance, error) {
	if orgID == 0 {
		return nil, creditdomain.ErrInvalidOrganization
	}
	if balance < 0 {
		return nil, creditdomain.ErrInvalidAmount
	}

	var out *creditdomain.Balance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.EnsureCredit(ctx, tx, s.genID.Generate(), orgID); err != nil {
			return err
		}
		current, err := s.repo.GetCredit(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if err := s.repo.SetBalance(ctx, tx, orgID, balance); err != nil {
			return err
		}
		if delta := balance - current.Balance; delta != 0 {
			if err := s.repo.InsertTransaction(ctx, tx, &ledgerdomain.ModelCreditTransaction{
				ID:             s.genID.Generate(),
				OrganizationID: orgID,
				UserID:         actorID,
				Amount:         delta,
				Reason:         ledgerdomain.ReasonAdminSet,
				CreatedAt:      s.clock.Now(),
			}); err != nil {
				return err
			}
		}
		updated, err := s.repo.GetCredit(ctx, tx, orgID)
		if err != nil {
			return err
		}
		out = toBalance(updated)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization balance set",
		zap.String("organization_id", orgID.String()),
		zap.String("actor_id", actorID.String()),
		zap.Int64("balance", balance),
	)
	return out, nil
}

// TopUp adds amount to the balance and records a top_up transaction.
func (s *Service) TopUp(ctx context.Context, orgID, actorID snowflake.ID, amount int64) (*creditdomain.Balance, error) {
	if orgID == 0 {
		return nil, creditdomain.ErrInvalidOrganization
	}
	if amount <= 0 {
		return nil, creditdomain.ErrInvalidAmount
	}

	var out *creditdomain.Balance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.EnsureCredit(ctx, tx, s.genID.Generate(), orgID); err != nil {
			return err
		}
		if err := s.repo.AdjustBalance(ctx, tx, orgID, amount); err != nil {
			return err
		}
		if err := s.repo.InsertTransaction(ctx, tx, &ledgerdomain.ModelCreditTransaction{
			ID:             s.genID.Generate(),
			OrganizationID: orgID,
			UserID:         actorID,
			Amount:         amount,
			Reason:         ledgerdomain.ReasonTopUp,
			CreatedAt:      s.clock.Now(),
		}); err != nil {
			return err
		}
		updated, err := s.repo.GetCredit(ctx, tx, orgID)
		if err != nil {
			return err
		}
		out = toBalance(updated)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization topped up",
		zap.String("organization_id", orgID.String()),
		zap.String("actor_id", actorID.String()),
		zap.Int64("amount", amount),
		zap.Int64("balance", out.Balance),
	)
	return out, nil
}

func (s *Service) GetMemberQuota(ctx context.Context, orgID, userID snowflake.ID) (*creditdomain.MemberQuota, error) {
	if err := validateMember(orgID, userID); err != nil {
		return nil, err
	}
	if err := s.repo.EnsureQuota(ctx, s.db, s.genID.Generate(), orgID, userID); err != nil {
		return nil, err
	}
	quota, err := s.repo.GetQuota(ctx, s.db, orgID, userID)
	if err != nil {
		return nil, err
	}
	out := toMemberQuota(quota)
	return &out, nil
}

// SetMemberLimit caps the member's consumption; nil removes the cap.
func (s *Service) SetMemberLimit(ctx context.Context, orgID, userID snowflake.ID, limit *int64) (*creditdomain.MemberQuota, error) {
	if err := validateMember(orgID, userID); err != nil {
		return nil, err
	}
	if limit != nil && *limit < 0 {
		return nil, creditdomain.ErrInvalidLimit
	}
	return s.updateQuota(ctx, orgID, userID, func(tx *gorm.DB) error {
		return s.repo.SetLimit(ctx, tx, orgID, userID, limit)
	})
}

func (s *Service) ResetMemberUsage(ctx context.Context, orgID, userID snowflake.ID) (*creditdomain.MemberQuota, error) {
	if err := validateMember(orgID, userID); err != nil {
		return nil, err
	}
	return s.updateQuota(ctx, orgID, userID, func(tx *gorm.DB) error {
		return s.repo.ResetUsed(ctx, tx, orgID, userID)
	})
}

func (s *Service) ListTransactions(ctx context.Context, orgID snowflake.ID, limit int) ([]ledgerdomain.ModelCreditTransaction, error) {
	if orgID == 0 {
		return nil, creditdomain.ErrInvalidOrganization
	}
	return s.repo.ListTransactions(ctx, s.db, orgID, limit)
}

func (s *Service) ListUsages(ctx context.Context, orgID snowflake.ID, limit int) ([]ledgerdomain.ModelUsage, error) {
	if orgID == 0 {
		return nil, creditdomain.ErrInvalidOrganization
	}
	return s.repo.ListUsages(ctx, s.db, orgID, limit)
}

func (s *Service) updateQuota(ctx context.Context, orgID, userID snowflake.ID, update func(tx *gorm.DB) error) (*creditdomain.MemberQuota, error) {
	var out creditdomain.MemberQuota
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.EnsureQuota(ctx, tx, s.genID.Generate(), orgID, userID); err != nil {
			return err
		}
		if err := update(tx); err != nil {
			return err
		}
		quota, err := s.repo.GetQuota(ctx, tx, orgID, userID)
		if err != nil {
			return err
		}
		out = toMemberQuota(quota)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) resolveOrganization(ctx context.Context, userID snowflake.ID) (snowflake.ID, error) {
	orgID, err := s.orgs.GetUserOrganization(ctx, userID)
	if err != nil {
		if errors.Is(err, orgdomain.ErrUserNotInOrganization) {
			return 0, creditdomain.ErrUserOrganizationRequired
		}
		return 0, err
	}
	if orgID == 0 {
		return 0, creditdomain.ErrUserOrganizationRequired
	}
	return orgID, nil
}

func (s *Service) ensureRows(ctx context.Context, db *gorm.DB, orgID, userID snowflake.ID) (*ledgerdomain.OrganizationCredit, *ledgerdomain.MemberQuota, error) {
	if err := s.repo.EnsureCredit(ctx, db, s.genID.Generate(), orgID); err != nil {
		return nil, nil, err
	}
	if err := s.repo.EnsureQuota(ctx, db, s.genID.Generate(), orgID, userID); err != nil {
		return nil, nil, err
	}
	credit, err := s.repo.GetCredit(ctx, db, orgID)
	if err != nil {
		return nil, nil, err
	}
	quota, err := s.repo.GetQuota(ctx, db, orgID, userID)
	if err != nil {
		return nil, nil, err
	}
	return credit, quota, nil
}

func (s *Service) recordDenial(ctx context.Context, err error) {
	if code, ok := creditdomain.CodeOf(err); ok {
		s.obsMetrics.RecordAllowanceCheck(ctx, string(code))
	}
}

func validateMember(orgID, userID snowflake.ID) error {
	if orgID == 0 {
		return creditdomain.ErrInvalidOrganization
	}
	if userID == 0 {
		return creditdomain.ErrInvalidUser
	}
	return nil
}

func toBalance(credit *ledgerdomain.OrganizationCredit) *creditdomain.Balance {
	return &creditdomain.Balance{
		OrganizationID: credit.OrganizationID,
		Balance:        credit.Balance,
		UpdatedAt:      credit.UpdatedAt,
	}
}

func toMemberQuota(quota *ledgerdomain.MemberQuota) creditdomain.MemberQuota {
	return creditdomain.MemberQuota{
		OrganizationID: quota.OrganizationID,
		UserID:         quota.UserID,
		Limit:          quota.Limit,
		Used:           quota.Used,
		Remaining:      quota.Remaining(),
		Period:         quota.Period,
	}
}
