package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	wetwire "github.com/lex00/wetwire-eks-go"
	"github.com/lex00/wetwire-eks-go/internal/addons"
	"github.com/lex00/wetwire-eks-go/internal/config"
	"github.com/lex00/wetwire-eks-go/internal/fetch"
	"github.com/lex00/wetwire-eks-go/internal/manifest"
	"github.com/lex00/wetwire-eks-go/internal/plan"
	"github.com/lex00/wetwire-eks-go/internal/policy"
	"github.com/lex00/wetwire-eks-go/internal/stacks"
	"github.com/lex00/wetwire-eks-go/internal/template"
)

// app holds the state shared by every subcommand: global flags, process
// options, the context values and the logger.
type app struct {
	contextPairs []string
	contextFile  string
	logLevel     string
	logFormat    string
	stackNames   []string
	manifestsDir string
	policiesDir  string
	valuesDir    string
	fetchTimeout time.Duration

	opts   config.Options
	ctx    *config.Context
	logger *zap.Logger
}

// builtStack is a stack with its declared plan.
type builtStack struct {
	Stack stacks.Stack
	Plan  *plan.Plan
}

func (a *app) registerFlags(flags *pflag.FlagSet) {
	flags.StringArrayVar(&a.contextPairs, "context", nil, "Context value as key=value (repeatable)")
	flags.StringVar(&a.contextFile, "context-file", "", `JSON or YAML file holding a "context" object`)
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: console or json")
	flags.StringSliceVarP(&a.stackNames, "stack", "s", nil, "Stacks to build (default: the enable_stack context value)")
	flags.StringVar(&a.manifestsDir, "manifests-dir", "", "Directory replacing the built-in add-on manifests")
	flags.StringVar(&a.policiesDir, "policies-dir", "", "Directory replacing the built-in policy catalogue")
	flags.StringVar(&a.valuesDir, "values-dir", "", "Directory of Helm values overrides named <chart>.yaml")
	flags.DurationVar(&a.fetchTimeout, "fetch-timeout", 0, "Timeout for each remote fetch (0 = none)")
}

// setup resolves options, builds the logger and loads context values.
func (a *app) setup(cmd *cobra.Command) error {
	opts, err := config.LoadOptions()
	if err != nil {
		return err
	}
	a.opts = mergeFlags(opts, cmd.Flags(), a)

	a.logger, err = newLogger(a.opts.LogLevel, a.opts.LogFormat)
	if err != nil {
		return err
	}
	return a.loadContext()
}

// mergeFlags overrides environment options with flags the user set.
func mergeFlags(o config.Options, flags *pflag.FlagSet, a *app) config.Options {
	if flags.Changed("log-level") {
		o.LogLevel = a.logLevel
	}
	if flags.Changed("log-format") {
		o.LogFormat = a.logFormat
	}
	if flags.Changed("context-file") {
		o.ContextFile = a.contextFile
	}
	if flags.Changed("manifests-dir") {
		o.ManifestsDir = a.manifestsDir
	}
	if flags.Changed("policies-dir") {
		o.PoliciesDir = a.policiesDir
	}
	if flags.Changed("values-dir") {
		o.ValuesDir = a.valuesDir
	}
	if flags.Changed("fetch-timeout") {
		o.FetchTimeout = a.fetchTimeout
	}
	return o
}

// loadContext rebuilds the context values: defaults and environment, then
// the context file, then --context overrides.
func (a *app) loadContext() error {
	c := config.New()
	if a.opts.ContextFile != "" {
		if err := c.ReadFile(a.opts.ContextFile); err != nil {
			return err
		}
	}
	for _, kv := range a.contextPairs {
		k, v, err := config.ParseOverride(kv)
		if err != nil {
			return err
		}
		c.Set(k, v)
	}
	a.ctx = c
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// selected returns the stacks named by --stack, or by enable_stack.
func (a *app) selected() ([]stacks.Stack, error) {
	names := a.stackNames
	if len(names) == 0 {
		names = a.ctx.StringSlice(config.KeyEnableStack)
	}
	return stacks.Select(names)
}

// env assembles what stacks are built against from the options and context.
func (a *app) env() (stacks.Env, error) {
	cluster, err := a.ctx.Cluster()
	if err != nil {
		return stacks.Env{}, err
	}

	fetcher := fetch.New(nil, a.opts.FetchTimeout, a.logger)

	manifests := addons.Manifests()
	if a.opts.ManifestsDir != "" {
		manifests = os.DirFS(a.opts.ManifestsDir)
	}
	var policies, values fs.FS
	if a.opts.PoliciesDir != "" {
		policies = os.DirFS(a.opts.PoliciesDir)
	}
	if a.opts.ValuesDir != "" {
		values = os.DirFS(a.opts.ValuesDir)
	}

	return stacks.Env{
		Cluster:    cluster,
		Settings:   addons.SettingsFromContext(a.ctx),
		Loader:     manifest.NewLoader(manifests, fetcher, a.logger),
		Translator: policy.NewTranslator(policies, fetcher, a.logger),
		Values:     values,
		Logger:     a.logger,
	}, nil
}

// plans declares every selected stack.
func (a *app) plans(ctx context.Context) ([]builtStack, error) {
	selected, err := a.selected()
	if err != nil {
		return nil, err
	}
	env, err := a.env()
	if err != nil {
		return nil, err
	}

	out := make([]builtStack, 0, len(selected))
	for _, s := range selected {
		p, err := s.Plan(ctx, env)
		if err != nil {
			return nil, err
		}
		out = append(out, builtStack{Stack: s, Plan: p})
	}
	return out, nil
}

// onePlan declares exactly one selected stack.
func (a *app) onePlan(ctx context.Context) (builtStack, error) {
	built, err := a.plans(ctx)
	if err != nil {
		return builtStack{}, err
	}
	if len(built) != 1 {
		return builtStack{}, fmt.Errorf("this command works on one stack, %d selected; pass --stack", len(built))
	}
	return built[0], nil
}

func (a *app) template(b builtStack) (*wetwire.Template, error) {
	return template.NewBuilder(b.Plan).WithLogger(a.logger).Build()
}

// newLogger builds a stderr logger. Console output is for people, json for
// log pipelines.
func newLogger(level, format string) (*zap.Logger, error) {
	var cfg zap.Config
	switch format {
	case "", "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown log format: %s (use 'console' or 'json')", format)
	}

	if level == "" {
		level = "info"
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg.Level = lvl
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// encode serializes a template as json or yaml.
func encode(tmpl *wetwire.Template, format string) ([]byte, error) {
	switch format {
	case "json":
		return template.ToJSON(tmpl)
	case "yaml":
		return template.ToYAML(tmpl)
	default:
		return nil, fmt.Errorf("unknown format: %s (use 'json' or 'yaml')", format)
	}
}
