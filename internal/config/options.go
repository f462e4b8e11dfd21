package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

// Options are process-level settings read from the environment. CLI flags
// override them.
type Options struct {
	LogLevel  string `env:"WETWIRE_EKS_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"WETWIRE_EKS_LOG_FORMAT" envDefault:"console"`
	// ContextFile is read before overrides are applied. Empty means none.
	ContextFile string `env:"WETWIRE_EKS_CONTEXT_FILE"`
	// FetchTimeout bounds each remote policy or manifest fetch; zero means
	// no timeout.
	FetchTimeout time.Duration `env:"WETWIRE_EKS_FETCH_TIMEOUT" envDefault:"0s"`
	// ManifestsDir replaces the built-in manifests when set.
	ManifestsDir string `env:"WETWIRE_EKS_MANIFESTS_DIR"`
	// PoliciesDir replaces the built-in policy catalogue when set.
	PoliciesDir string `env:"WETWIRE_EKS_POLICIES_DIR"`
	// ValuesDir holds Helm values overrides named <chart>.yaml.
	ValuesDir string `env:"WETWIRE_EKS_VALUES_DIR"`
	CDKOutdir string `env:"WETWIRE_EKS_CDK_OUTDIR" envDefault:"cdk.out"`
}

// LoadOptions parses Options from the environment.
func LoadOptions() (Options, error) {
	var o Options
	if err := env.Parse(&o); err != nil {
		return Options{}, fmt.Errorf("parsing environment: %w", err)
	}
	return o, nil
}
