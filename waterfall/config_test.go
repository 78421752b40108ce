package waterfall_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/loan-engine/waterfall"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "waterfall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestDefaultConfig_MatchesServicingOrder(t *testing.T) {
	cfg := waterfall.DefaultConfig()

	require.Len(t, cfg.Steps, 5)
	want := []string{"fees", "penalties", "interest", "principal", "escrow"}
	for i, step := range cfg.Steps {
		assert.Equal(t, want[i], step.Category)
		assert.Equal(t, 100.0, step.PercentageCap)
	}
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	path := writeConfigFile(t, `
steps:
  - category: interest
    percentage_cap: 100
  - category: principal
    percentage_cap: 50
`)

	cfg, err := waterfall.LoadConfig(path)
	require.NoError(t, err)

	require.Len(t, cfg.Steps, 2)
	assert.Equal(t, "interest", cfg.Steps[0].Category)
	assert.Equal(t, 100.0, cfg.Steps[0].PercentageCap)
	assert.Equal(t, "principal", cfg.Steps[1].Category)
	assert.Equal(t, 50.0, cfg.Steps[1].PercentageCap)
}

func TestLoadConfig_EmptyPathUsesDefault(t *testing.T) {
	t.Setenv("WATERFALL_CONFIG", "")

	cfg, err := waterfall.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, waterfall.DefaultConfig(), cfg)
}

func TestLoadConfig_EnvFallback(t *testing.T) {
	path := writeConfigFile(t, `
steps:
  - category: principal
    percentage_cap: 100
`)
	t.Setenv("WATERFALL_CONFIG", path)

	cfg, err := waterfall.LoadConfig("")
	require.NoError(t, err)

	require.Len(t, cfg.Steps, 1)
	assert.Equal(t, "principal", cfg.Steps[0].Category)
}

func TestLoadConfig_MissingFileKeepsDefault(t *testing.T) {
	cfg, err := waterfall.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.Error(t, err, "an explicit path that cannot be read is reported")
	assert.Equal(t, waterfall.DefaultConfig(), cfg, "the caller still gets a usable waterfall")
}

func TestLoadConfig_MalformedYAMLKeepsDefault(t *testing.T) {
	path := writeConfigFile(t, "steps: not-a-list\n")

	cfg, err := waterfall.LoadConfig(path)

	assert.Error(t, err)
	assert.Equal(t, waterfall.DefaultConfig(), cfg)
}

func TestLoadConfig_EmptyStepsKeepsDefault(t *testing.T) {
	path := writeConfigFile(t, "steps: []\n")

	cfg, err := waterfall.LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Steps, 5)
}

func TestConfig_SequenceFeedsTheAllocator(t *testing.T) {
	// The default config must survive the round trip into a live
	// allocator without tripping step validation.
	alloc, err := waterfall.NewAllocator(waterfall.DefaultConfig().Sequence())
	require.NoError(t, err)
	assert.Len(t, alloc.Steps(), 5)
}
