package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newWatchCmd creates the "watch" subcommand for re-synthesizing on input changes.
func newWatchCmd(a *app) *cobra.Command {
	var (
		debounce time.Duration
		opts     synthOptions
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-synthesize when inputs change",
		Long: `Watch monitors the context file and the manifest, policy and values
directories, and re-synthesizes the selected stacks on every change.

The watch command:
- Re-reads the context file before each run
- Only reacts to .json, .yaml and .yml files
- Debounces rapid changes to avoid excessive rebuilds

Examples:
    wetwire-eks watch --stack EksIrsa --context-file cdk.json -o eks-irsa.json
    wetwire-eks watch --stack StatefulCluster --manifests-dir ./manifests -o out/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.backend = "native"
			return runWatch(cmd, a, debounce, opts)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Debounce duration for rapid changes")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file, or directory for several stacks (default: stdout)")

	return cmd
}

// watchTargets returns the directories holding watched inputs.
func watchTargets(a *app) []string {
	var dirs []string
	seen := make(map[string]bool)
	add := func(dir string) {
		abs, err := filepath.Abs(dir)
		if err != nil || seen[abs] {
			return
		}
		seen[abs] = true
		dirs = append(dirs, abs)
	}

	if a.opts.ContextFile != "" {
		add(filepath.Dir(a.opts.ContextFile))
	}
	for _, d := range []string{a.opts.ManifestsDir, a.opts.PoliciesDir, a.opts.ValuesDir} {
		if d != "" {
			add(d)
		}
	}
	return dirs
}

// relevant reports whether event should trigger a rebuild.
func relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	switch strings.ToLower(filepath.Ext(event.Name)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func runWatch(cmd *cobra.Command, a *app, debounce time.Duration, opts synthOptions) error {
	dirs := watchTargets(a)
	if len(dirs) == 0 {
		return fmt.Errorf("nothing to watch: set --context-file, --manifests-dir, --policies-dir or --values-dir")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	for _, dir := range dirs {
		if err := addDirRecursive(watcher, dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		a.logger.Info("watching", zap.String("dir", dir))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	rebuild := func() {
		if err := a.loadContext(); err != nil {
			a.logger.Error("reading context", zap.Error(err))
			return
		}
		if _, err := synthNative(cmd, a, opts); err != nil {
			a.logger.Error("synthesis failed", zap.Error(err))
		}
	}

	rebuild()

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()
	rebuildChan := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !track(watcher, event, a.logger) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, func() {
				select {
				case rebuildChan <- struct{}{}:
				default:
				}
			})

		case <-rebuildChan:
			a.logger.Info("change detected, rebuilding")
			rebuild()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("watch error", zap.Error(err))

		case <-cmd.Context().Done():
			return nil

		case <-sigChan:
			a.logger.Info("stopping watch")
			return nil
		}
	}
}

// track starts watching directories created inside a watched tree and
// reports whether event should trigger a rebuild. A new directory always
// does, since files moved in with it raise no events of their own.
func track(watcher *fsnotify.Watcher, event fsnotify.Event, logger *zap.Logger) bool {
	if event.Op&fsnotify.Create != 0 {
		info, err := os.Stat(event.Name)
		if err == nil && info.IsDir() {
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				return false
			}
			if err := addDirRecursive(watcher, event.Name); err != nil {
				logger.Warn("watch new directory", zap.String("dir", event.Name), zap.Error(err))
				return false
			}
			logger.Info("watching", zap.String("dir", event.Name))
			return true
		}
	}
	return relevant(event)
}

// addDirRecursive adds a directory and all subdirectories to the watcher.
func addDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
