package sources_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/config/types"
	"github.com/jonesrussell/newsflow/internal/domain"
	"github.com/jonesrussell/newsflow/internal/logger"
	"github.com/jonesrussell/newsflow/internal/sources"
)

func goodSource(id string) types.Source {
	return types.Source{
		ID:       id,
		Name:     id,
		URL:      "https://" + id + ".example.com",
		SeedURLs: []string{"https://" + id + ".example.com/latest"},
		Rate:     types.RatePolicy{RequestsPerSecond: 1, Burst: 1},
		Selectors: types.Selectors{
			Article: types.ArticleSelectors{Container: "article", Title: "h1", Body: ".body"},
		},
	}
}

func TestRegistryLoadSuspendsBadRate(t *testing.T) {
	t.Parallel()

	reg := sources.NewRegistry(logger.NewNop())

	bad := goodSource("bad")
	bad.Rate.RequestsPerSecond = 0

	cfgErrs := reg.Load([]types.Source{goodSource("good"), bad})
	require.Len(t, cfgErrs, 1)

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, cfgErrs[0], &cfgErr)
	assert.Equal(t, "bad", cfgErr.SourceID)

	health, ok := reg.Health("bad")
	require.True(t, ok)
	assert.Equal(t, sources.HealthSuspended, health)

	health, ok = reg.Health("good")
	require.True(t, ok)
	assert.Equal(t, sources.HealthActive, health)

	// Only the healthy source is schedulable.
	active := reg.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "good", active[0].ID)
}

func TestRegistrySuspendResume(t *testing.T) {
	t.Parallel()

	reg := sources.NewRegistry(logger.NewNop())
	require.Empty(t, reg.Load([]types.Source{goodSource("src")}))

	reg.Suspend("src", "circuit open")
	health, _ := reg.Health("src")
	assert.Equal(t, sources.HealthSuspended, health)
	assert.Empty(t, reg.Active())

	reg.Resume("src")
	health, _ = reg.Health("src")
	assert.Equal(t, sources.HealthActive, health)
	assert.Len(t, reg.Active(), 1)
}

func TestRegistryDisabledSourceNotActive(t *testing.T) {
	t.Parallel()

	reg := sources.NewRegistry(logger.NewNop())

	disabled := goodSource("off")
	disabled.Disabled = true
	require.Empty(t, reg.Load([]types.Source{disabled}))

	assert.Empty(t, reg.Active())
}

func TestRegistryCalibration(t *testing.T) {
	t.Parallel()

	reg := sources.NewRegistry(logger.NewNop())

	calibrated := goodSource("tuned")
	calibrated.CulturalCalibration = 0.7
	require.Empty(t, reg.Load([]types.Source{calibrated, goodSource("plain")}))

	assert.InDelta(t, 0.7, reg.Calibration("tuned"), 1e-9)
	// Unset and unknown sources both read as no adjustment.
	assert.InDelta(t, 1.0, reg.Calibration("plain"), 1e-9)
	assert.InDelta(t, 1.0, reg.Calibration("ghost"), 1e-9)
}
