package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const pricingYAML = `
pricing:
  models:
    - provider: OpenAI
      model: gpt-image
      units:
        - name: imageGeneration
          strategy: tiered
          tiers:
            - upTo: 100
              rate: 2
            - rate: 1
        - name: request
          strategy: fixed
          rate: 0.5
`

func TestFileCatalogLoadsSchedules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yml")
	require.NoError(t, os.WriteFile(path, []byte(pricingYAML), 0o600))

	c, err := NewFileCatalog(path, zap.NewNop())
	require.NoError(t, err)

	got, err := c.Lookup(context.Background(), "openai", "GPT-IMAGE")
	require.NoError(t, err)
	require.Len(t, got.Units, 2)
	assert.Equal(t, pricingdomain.StrategyTiered, got.Units[0].Strategy)
	require.Len(t, got.Units[0].Tiers, 2)
	require.NotNil(t, got.Units[0].Tiers[0].UpTo)
	assert.Equal(t, 100.0, *got.Units[0].Tiers[0].UpTo)
	assert.Equal(t, int64(5), pricingdomain.CalculateImageCredits(2, got))

	_, err = c.Lookup(context.Background(), "openai", "other")
	assert.ErrorIs(t, err, pricingdomain.ErrPricingNotFound)
}

func TestFileCatalogMissingFileIsEmpty(t *testing.T) {
	c, err := NewFileCatalog(filepath.Join(t.TempDir(), "absent.yml"), zap.NewNop())
	require.NoError(t, err)

	_, err = c.Lookup(context.Background(), "a", "b")
	assert.ErrorIs(t, err, pricingdomain.ErrPricingNotFound)
}

func TestFileCatalogRejectsInvalidSchedule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yml")
	require.NoError(t, os.WriteFile(path, []byte("pricing:\n  models:\n    - provider: x\n      model: ''\n"), 0o600))

	_, err := NewFileCatalog(path, zap.NewNop())
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidModel)
}
