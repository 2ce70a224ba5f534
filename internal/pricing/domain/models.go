// Package domain holds price schedules and the credit calculator.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Strategy is how a pricing unit turns a quantity into credits.
type Strategy string

const (
	StrategyFixed  Strategy = "fixed"
	StrategyTiered Strategy = "tiered"
)

// UnitName identifies a priced dimension of usage.
type UnitName string

const (
	UnitTextInput          UnitName = "textInput"
	UnitTextInputCacheRead UnitName = "textInput_cacheRead"
	UnitTextOutput         UnitName = "textOutput"
	UnitImageGeneration    UnitName = "imageGeneration"
	UnitImageOutput        UnitName = "imageOutput"
	UnitRequest            UnitName = "request"
	UnitThreeDGeneration   UnitName = "threeDGeneration"
)

// Tier is one row of a tiered rate table.
type Tier struct {
	UpTo *float64 `json:"upTo,omitempty" mapstructure:"upTo"`
	Rate float64  `json:"rate" mapstructure:"rate"`
}

// Unit is a named, priced dimension within a model's schedule. Text units are
// priced per million tokens; every other unit is priced per item.
type Unit struct {
	Name     UnitName `json:"name" mapstructure:"name"`
	Strategy Strategy `json:"strategy" mapstructure:"strategy"`
	Rate     float64  `json:"rate,omitempty" mapstructure:"rate"`
	Tiers    []Tier   `json:"tiers,omitempty" mapstructure:"tiers"`
	Unit     string   `json:"unit,omitempty" mapstructure:"unit"`
}

// Pricing is the price schedule of one provider model.
type Pricing struct {
	Provider string `json:"provider" mapstructure:"provider"`
	Model    string `json:"model" mapstructure:"model"`
	Units    []Unit `json:"units" mapstructure:"units"`
}

// UnitRate returns the effective rate of a unit. Tiered units only read the
// first tier; there is no proration across tiers.
func (u Unit) UnitRate() (float64, bool) {
	switch u.Strategy {
	case StrategyFixed:
		return u.Rate, true
	case StrategyTiered:
		if len(u.Tiers) == 0 {
			return 0, false
		}
		return u.Tiers[0].Rate, true
	default:
		return 0, false
	}
}

// Rate returns the rate of the named unit.
func (p *Pricing) Rate(name UnitName) (float64, bool) {
	if p == nil {
		return 0, false
	}
	for _, unit := range p.Units {
		if unit.Name == name {
			return unit.UnitRate()
		}
	}
	return 0, false
}

// Cost sums quantity × rate over the schedule. Units missing from quantities,
// or with an unknown strategy, contribute nothing.
func (p *Pricing) Cost(quantities map[UnitName]float64) float64 {
	if p == nil {
		return 0
	}
	var total float64
	for _, unit := range p.Units {
		qty, ok := quantities[unit.Name]
		if !ok {
			continue
		}
		rate, ok := unit.UnitRate()
		if !ok {
			continue
		}
		total += qty * rate
	}
	return total
}

// ModelPrice persists a schedule in the database catalog.
type ModelPrice struct {
	ID        snowflake.ID              `gorm:"primaryKey" json:"id"`
	Provider  string                    `gorm:"size:255;not null;uniqueIndex:ux_model_prices_provider_model,priority:1" json:"provider"`
	Model     string                    `gorm:"size:255;not null;uniqueIndex:ux_model_prices_provider_model,priority:2" json:"model"`
	Units     datatypes.JSONSlice[Unit] `gorm:"not null" json:"units"`
	CreatedAt time.Time                 `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time                 `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ModelPrice) TableName() string { return "model_prices" }

// Catalog is one source of price schedules.
type Catalog interface {
	Lookup(ctx context.Context, provider, model string) (*Pricing, error)
}

// Resolver returns the schedule of a provider model, or nil when none resolves.
type Resolver interface {
	Resolve(ctx context.Context, provider, model string) *Pricing
}

var (
	ErrPricingNotFound = errors.New("pricing_not_found")
	ErrInvalidProvider = errors.New("invalid_provider")
	ErrInvalidModel    = errors.New("invalid_model")
	ErrInvalidUnit     = errors.New("invalid_pricing_unit")
)

// NormalizeKey lowercases and trims a provider or model identifier.
func NormalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Validate checks a schedule before it is stored.
func (p Pricing) Validate() error {
	if NormalizeKey(p.Provider) == "" {
		return ErrInvalidProvider
	}
	if NormalizeKey(p.Model) == "" {
		return ErrInvalidModel
	}
	for _, unit := range p.Units {
		if strings.TrimSpace(string(unit.Name)) == "" {
			return ErrInvalidUnit
		}
		if unit.Rate < 0 {
			return ErrInvalidUnit
		}
		for _, tier := range unit.Tiers {
			if tier.Rate < 0 {
				return ErrInvalidUnit
			}
		}
	}
	return nil
}
