package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type fileSchedule struct {
	Models []pricingdomain.Pricing `mapstructure:"models"`
}

// FileCatalog serves schedules from a pricing.yml file and reloads them when
// the file changes.
type FileCatalog struct {
	log     *zap.Logger
	current atomic.Value // holds map[string]pricingdomain.Pricing
}

// NewFileCatalog loads path. An empty path falls back to pricing.yml in the
// usual config directories; a missing file yields an empty catalog.
func NewFileCatalog(path string, log *zap.Logger) (*FileCatalog, error) {
	v := viper.New()
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pricing")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/creditgate")
		v.AddConfigPath(".")
	}

	catalog := &FileCatalog{log: log.Named("pricing.file_catalog")}
	catalog.current.Store(map[string]pricingdomain.Pricing{})

	if err := v.ReadInConfig(); err != nil {
		if isConfigNotFound(err) {
			catalog.log.Info("pricing file not found, file catalog disabled")
			return catalog, nil
		}
		return nil, err
	}

	schedules, err := decodeSchedules(v)
	if err != nil {
		return nil, err
	}
	catalog.current.Store(schedules)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSchedules(v)
		if err != nil {
			catalog.log.Warn("pricing reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		catalog.current.Store(updated)
		catalog.log.Info("pricing reloaded", zap.String("file", filepath.Base(e.Name)), zap.Int("models", len(updated)))
	})

	return catalog, nil
}

// NewStaticCatalog builds a catalog from in-memory schedules.
func NewStaticCatalog(schedules ...pricingdomain.Pricing) *FileCatalog {
	catalog := &FileCatalog{log: zap.NewNop()}
	indexed := make(map[string]pricingdomain.Pricing, len(schedules))
	for _, schedule := range schedules {
		indexed[scheduleKey(schedule.Provider, schedule.Model)] = schedule
	}
	catalog.current.Store(indexed)
	return catalog
}

func (c *FileCatalog) Lookup(_ context.Context, provider, model string) (*pricingdomain.Pricing, error) {
	schedules := c.current.Load().(map[string]pricingdomain.Pricing)
	schedule, ok := schedules[scheduleKey(provider, model)]
	if !ok {
		return nil, pricingdomain.ErrPricingNotFound
	}
	return &schedule, nil
}

func decodeSchedules(v *viper.Viper) (map[string]pricingdomain.Pricing, error) {
	var raw fileSchedule
	if err := v.UnmarshalKey("pricing", &raw); err != nil {
		return nil, err
	}
	out := make(map[string]pricingdomain.Pricing, len(raw.Models))
	for i, schedule := range raw.Models {
		if err := schedule.Validate(); err != nil {
			return nil, fmt.Errorf("pricing.models[%d]: %w", i, err)
		}
		out[scheduleKey(schedule.Provider, schedule.Model)] = schedule
	}
	return out, nil
}

func scheduleKey(provider, model string) string {
	return pricingdomain.NormalizeKey(provider) + "|" + pricingdomain.NormalizeKey(model)
}

func isConfigNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}
