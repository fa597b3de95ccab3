package registry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/grid-infra/dl-acceptor/types"
)

// Registry manages the run plan: the ordered set of driver configurations
// an orchestration cycle executes.
type Registry struct {
	config Config
	runs   []types.RunConfiguration
	mu     sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log            log.Logger
	PlanFile       string
	DefaultTimeout time.Duration
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.PlanFile == "" {
		return nil, fmt.Errorf("run plan file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		config: cfg,
	}

	if err := r.loadRuns(cfg.PlanFile); err != nil {
		return nil, fmt.Errorf("failed to load run plan: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "len(runs)", len(r.runs))

	return r, nil
}

// loadRuns loads the run plan and converts it into run configurations
func (r *Registry) loadRuns(planPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	plan, err := loadPlan(planPath)
	if err != nil {
		return fmt.Errorf("failed to load plan: %w", err)
	}

	if err := validatePlan(plan); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}

	r.runs = r.runsFromPlan(plan)

	return nil
}

// validatePlan checks the run plan for structural problems before any run starts
func validatePlan(plan *types.PlanConfig) error {
	if len(plan.Runs) == 0 {
		return fmt.Errorf("plan contains no runs")
	}

	for i, spec := range plan.Runs {
		if spec.Config == "" {
			return fmt.Errorf("run %d: config path is required", i)
		}
		if spec.Timeout != nil && *spec.Timeout < 0 {
			return fmt.Errorf("run %d (%s): timeout must not be negative", i, spec.Config)
		}
	}

	return nil
}

// GetRuns returns the run configurations in plan order
func (r *Registry) GetRuns() []types.RunConfiguration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runs
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

// loadPlan loads a run plan from a file
func loadPlan(path string) (*types.PlanConfig, error) {
	log.Debug("Reading run plan file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	var plan types.PlanConfig
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing plan file: %w", err)
	}

	return &plan, nil
}

// runsFromPlan converts plan entries into run configurations, preserving order
func (r *Registry) runsFromPlan(plan *types.PlanConfig) []types.RunConfiguration {
	runs := make([]types.RunConfiguration, 0, len(plan.Runs))

	for _, spec := range plan.Runs {
		var timeout time.Duration
		if spec.Timeout != nil {
			timeout = *spec.Timeout
		} else {
			timeout = r.config.DefaultTimeout
		}

		runs = append(runs, types.RunConfiguration{
			Name:       spec.Name,
			ConfigPath: spec.Config,
			Cleanup:    spec.Cleanup,
			Exit:       spec.Exit,
			Timeout:    timeout,
		})
	}

	return runs
}
