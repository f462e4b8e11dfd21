// Package compose declares Kubernetes manifests and Helm releases on a plan,
// optionally gated on an IRSA identity.
//
// Every resource is one call taking an immutable options value. Manifest
// content comes from a Producer function rather than from subclass hooks,
// so identity-bound and plain manifests share a single code path.
package compose

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lex00/wetwire-eks-go/internal/failure"
	"github.com/lex00/wetwire-eks-go/internal/irsa"
	"github.com/lex00/wetwire-eks-go/internal/manifest"
	"github.com/lex00/wetwire-eks-go/internal/plan"
)

// Context is what a Producer sees when generating documents.
type Context struct {
	Cluster plan.Cluster
	// Identity is nil for plain manifests.
	Identity *irsa.Binding
}

// Producer returns the documents a manifest resource applies.
type Producer func(ctx context.Context, c Context) (manifest.Set, error)

// Documents is a Producer that always returns set.
func Documents(set manifest.Set) Producer {
	return func(context.Context, Context) (manifest.Set, error) { return set, nil }
}

// ManifestOptions configures Apply.
type ManifestOptions struct {
	ID plan.ID
	// Identity, when set, is bound before the manifest, and the manifest
	// depends on it.
	Identity  *irsa.Spec
	Produce   Producer
	Overwrite bool
	// DependsOn lists further nodes the manifest waits for.
	DependsOn []plan.ID
}

// HelmRelease describes a chart installation.
type HelmRelease struct {
	Chart           string
	Repository      string
	Release         string
	Namespace       string
	Version         string
	Values          map[string]any
	CreateNamespace bool
	Wait            bool
	Timeout         time.Duration
}

// ReleaseOptions configures Release.
type ReleaseOptions struct {
	ID        plan.ID
	Identity  *irsa.Spec
	Chart     HelmRelease
	DependsOn []plan.ID
}

// Applied is the outcome of Apply.
type Applied struct {
	ID        plan.ID
	Binding   *irsa.Binding
	Documents manifest.Set
}

// Released is the outcome of Release.
type Released struct {
	ID      plan.ID
	Binding *irsa.Binding
}

// Composer writes resources into a plan.
type Composer struct {
	Plan   *plan.Plan
	Binder *irsa.Binder
	Logger *zap.Logger
}

// New returns a Composer. A nil logger discards output.
func New(p *plan.Plan, binder *irsa.Binder, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if binder == nil {
		binder = irsa.NewBinder(nil, logger)
	}
	return &Composer{Plan: p, Binder: binder, Logger: logger}
}

// Identity binds an identity with no dependent resource.
func (c *Composer) Identity(ctx context.Context, id plan.ID, spec irsa.Spec) (*irsa.Binding, error) {
	return c.Binder.Bind(ctx, c.Plan, id, spec)
}

// Apply declares a manifest resource. With an identity, the identity is
// bound first under opts.ID and the manifest node opts.ID/manifest depends
// on every node of Binding.Ready. Without one, the manifest node is opts.ID
// itself.
func (c *Composer) Apply(ctx context.Context, opts ManifestOptions) (*Applied, error) {
	if opts.Produce == nil {
		return nil, failure.Newf(failure.MissingRequiredField, "apply manifest", string(opts.ID), "no producer")
	}

	var (
		bd  *irsa.Binding
		err error
	)
	nodeID := opts.ID
	if opts.Identity != nil {
		bd, err = c.Binder.Bind(ctx, c.Plan, opts.ID, *opts.Identity)
		if err != nil {
			return nil, err
		}
		nodeID = opts.ID.Child("manifest")
	}

	docs, err := opts.Produce(ctx, Context{Cluster: c.Plan.Cluster(), Identity: bd})
	if err != nil {
		return nil, fmt.Errorf("apply manifest %s: %w", opts.ID, err)
	}
	if len(docs) == 0 {
		c.Logger.Warn("manifest resource has no documents", zap.String("id", string(opts.ID)))
	}

	if err := c.Plan.Add(&plan.Manifest{ID: nodeID, Documents: docs.Objects(), Overwrite: opts.Overwrite}); err != nil {
		return nil, err
	}
	if err := c.gate(nodeID, bd, opts.DependsOn); err != nil {
		return nil, err
	}

	c.Logger.Info("declared manifest",
		zap.String("id", string(nodeID)),
		zap.Int("documents", len(docs)),
		zap.Bool("identity", bd != nil))
	return &Applied{ID: nodeID, Binding: bd, Documents: docs}, nil
}

// Release declares a Helm release, gated on an identity when one is given.
func (c *Composer) Release(ctx context.Context, opts ReleaseOptions) (*Released, error) {
	ch := opts.Chart
	if ch.Chart == "" {
		return nil, failure.Newf(failure.MissingRequiredField, "release chart", string(opts.ID), "no chart")
	}

	var (
		bd  *irsa.Binding
		err error
	)
	nodeID := opts.ID
	if opts.Identity != nil {
		bd, err = c.Binder.Bind(ctx, c.Plan, opts.ID, *opts.Identity)
		if err != nil {
			return nil, err
		}
		nodeID = opts.ID.Child("chart")
	}

	release := ch.Release
	if release == "" {
		release = opts.ID.Base()
	}
	ns := ch.Namespace
	if ns == "" {
		ns = "default"
	}

	node := &plan.HelmChart{
		ID:              nodeID,
		Chart:           ch.Chart,
		Repository:      ch.Repository,
		Release:         release,
		Namespace:       ns,
		Version:         ch.Version,
		Values:          ch.Values,
		CreateNamespace: ch.CreateNamespace,
		Wait:            ch.Wait,
		Timeout:         ch.Timeout,
	}
	if err := c.Plan.Add(node); err != nil {
		return nil, err
	}
	if err := c.gate(nodeID, bd, opts.DependsOn); err != nil {
		return nil, err
	}

	c.Logger.Info("declared helm release",
		zap.String("id", string(nodeID)),
		zap.String("chart", ch.Chart),
		zap.String("namespace", ns),
		zap.Bool("identity", bd != nil))
	return &Released{ID: nodeID, Binding: bd}, nil
}

// Output exports value under id.
func (c *Composer) Output(id plan.ID, value, description string) error {
	return c.Plan.Add(&plan.Output{ID: id, Value: value, Description: description})
}

// DependOn records that from waits for every node in to.
func (c *Composer) DependOn(from plan.ID, to ...plan.ID) error {
	return c.Plan.AddDependency(from, to...)
}

func (c *Composer) gate(id plan.ID, bd *irsa.Binding, extra []plan.ID) error {
	var deps []plan.ID
	if bd != nil {
		deps = append(deps, bd.Ready()...)
	}
	deps = append(deps, extra...)
	if len(deps) == 0 {
		return nil
	}
	return c.Plan.AddDependency(id, deps...)
}
