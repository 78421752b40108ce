package waterfall

import (
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// StepConfig is one waterfall rung as written in YAML.
type StepConfig struct {
	Category      string  `yaml:"category"`
	PercentageCap float64 `yaml:"percentage_cap"`
}

// Config defines the waterfall step order.
type Config struct {
	Steps []StepConfig `yaml:"steps"`
}

// LoadConfig loads the waterfall from a yaml file or falls back to the
// default servicing order. When path is empty, the WATERFALL_CONFIG
// environment variable is consulted before giving up on file config.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("WATERFALL_CONFIG")
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	loaded := Config{}
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return cfg, err
	}
	if len(loaded.Steps) > 0 {
		cfg.Steps = loaded.Steps
	}
	return cfg, nil
}

// DefaultConfig mirrors DefaultSteps in config form.
func DefaultConfig() Config {
	steps := DefaultSteps()
	cfg := Config{Steps: make([]StepConfig, 0, len(steps))}
	for _, step := range steps {
		cfg.Steps = append(cfg.Steps, StepConfig{
			Category:      string(step.Category),
			PercentageCap: step.PercentageCap.InexactFloat64(),
		})
	}
	return cfg
}

// Sequence converts the config into allocator steps. Validation of
// categories and caps happens in NewAllocator.
func (c Config) Sequence() []Step {
	steps := make([]Step, 0, len(c.Steps))
	for _, sc := range c.Steps {
		steps = append(steps, Step{
			Category:      Category(sc.Category),
			PercentageCap: decimal.NewFromFloat(sc.PercentageCap),
		})
	}
	return steps
}
