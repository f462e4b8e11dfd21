// Package irsa binds an IAM role to a Kubernetes service account.
//
// Binding walks a fixed sequence of steps, each recorded as a plan node
// with explicit dependency edges:
//
//	Start → [NamespaceCreated] → IdentityCreated → PermissionsAttached → Ready
//
// NamespaceCreated only happens when Spec.CreateNamespace is set. Downstream
// resources depend on Binding.Ready, never on a single step.
package irsa

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/lex00/wetwire-eks-go/internal/failure"
	"github.com/lex00/wetwire-eks-go/internal/manifest"
	"github.com/lex00/wetwire-eks-go/internal/plan"
	"github.com/lex00/wetwire-eks-go/internal/policy"
)

// DefaultNamespace is used when a spec names no namespace.
const DefaultNamespace = "default"

// Spec describes one identity binding.
type Spec struct {
	// Name of the service account. Derived from the binding id when empty.
	Name string
	// Namespace of the service account. DefaultNamespace when empty.
	Namespace string
	// CreateNamespace adds a Namespace manifest the identity depends on.
	CreateNamespace bool
	// Policy is the permissions source. The zero Source grants nothing.
	Policy policy.Source
	Labels map[string]string
}

// Step is a stage of the binding sequence.
type Step int

const (
	StepStart Step = iota
	StepNamespaceCreated
	StepIdentityCreated
	StepPermissionsAttached
	StepReady
)

func (s Step) String() string {
	switch s {
	case StepStart:
		return "Start"
	case StepNamespaceCreated:
		return "NamespaceCreated"
	case StepIdentityCreated:
		return "IdentityCreated"
	case StepPermissionsAttached:
		return "PermissionsAttached"
	case StepReady:
		return "Ready"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// Binding is the result of a completed bind.
type Binding struct {
	ID        plan.ID
	Name      string
	Namespace string
	// NamespaceNode is empty unless the namespace was created.
	NamespaceNode plan.ID
	Identity      plan.ID
	// Permissions is empty when the policy had no statements.
	Permissions plan.ID
	Statements  int

	steps []Step
}

// Ready returns the nodes a dependent resource must depend on.
func (b *Binding) Ready() []plan.ID {
	out := []plan.ID{b.Identity}
	if b.Permissions != "" {
		out = append(out, b.Permissions)
	}
	return out
}

// Steps returns the steps taken, in order.
func (b *Binding) Steps() []Step {
	return append([]Step(nil), b.steps...)
}

// RoleArn is a token for the role's ARN, for use inside documents.
func (b *Binding) RoleArn() string { return plan.AttrToken(b.Identity, plan.AttrRoleArn) }

// RoleName is a token for the role's name.
func (b *Binding) RoleName() string { return plan.AttrToken(b.Identity, plan.AttrRoleName) }

// Binder creates identity bindings.
type Binder struct {
	Translator *policy.Translator
	Logger     *zap.Logger
}

// NewBinder returns a Binder. A nil logger discards output.
func NewBinder(tr *policy.Translator, logger *zap.Logger) *Binder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Binder{Translator: tr, Logger: logger}
}

// Bind adds the binding's nodes to p under id.
func (b *Binder) Bind(ctx context.Context, p *plan.Plan, id plan.ID, spec Spec) (*Binding, error) {
	if id == "" {
		return nil, failure.Newf(failure.MissingRequiredField, "bind identity", "", "empty id")
	}
	name, ns, err := b.resolve(id, spec)
	if err != nil {
		return nil, err
	}

	stmts, err := b.translator().Translate(ctx, spec.Policy)
	if err != nil {
		return nil, fmt.Errorf("bind identity %s: %w", id, err)
	}

	bd := &Binding{ID: id, Name: name, Namespace: ns, steps: []Step{StepStart}}

	if spec.CreateNamespace {
		doc, err := manifest.FromObject(&corev1.Namespace{
			TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Namespace"},
			ObjectMeta: metav1.ObjectMeta{Name: ns},
		})
		if err != nil {
			return nil, fmt.Errorf("bind identity %s: %w", id, err)
		}
		bd.NamespaceNode = id.Child("namespace")
		if err := p.Add(&plan.Manifest{ID: bd.NamespaceNode, Documents: []map[string]any{doc.Object()}}); err != nil {
			return nil, err
		}
		bd.steps = append(bd.steps, StepNamespaceCreated)
	}

	bd.Identity = id.Child("identity")
	if err := p.Add(&plan.ServiceAccount{ID: bd.Identity, Name: name, Namespace: ns, Labels: spec.Labels}); err != nil {
		return nil, err
	}
	if bd.NamespaceNode != "" {
		if err := p.AddDependency(bd.Identity, bd.NamespaceNode); err != nil {
			return nil, err
		}
	}
	bd.steps = append(bd.steps, StepIdentityCreated)

	if len(stmts) > 0 {
		bd.Permissions = id.Child("policy")
		if err := p.Add(&plan.Policy{ID: bd.Permissions, Identity: bd.Identity, Statements: stmts}); err != nil {
			return nil, err
		}
		if err := p.AddDependency(bd.Permissions, bd.Identity); err != nil {
			return nil, err
		}
	}
	bd.Statements = len(stmts)
	bd.steps = append(bd.steps, StepPermissionsAttached, StepReady)

	b.Logger.Info("bound identity",
		zap.String("id", string(id)),
		zap.String("serviceAccount", ns+"/"+name),
		zap.Bool("createNamespace", spec.CreateNamespace),
		zap.Int("statements", len(stmts)),
		zap.String("policy", spec.Policy.String()))
	return bd, nil
}

func (b *Binder) resolve(id plan.ID, spec Spec) (name, ns string, err error) {
	ns = spec.Namespace
	if ns == "" {
		b.Logger.Warn("no namespace for identity, using default",
			zap.String("id", string(id)),
			zap.String("namespace", DefaultNamespace))
		ns = DefaultNamespace
	}
	if errs := validation.IsDNS1123Label(ns); len(errs) > 0 {
		return "", "", failure.Newf(failure.InvalidSpec, "bind identity", string(id),
			"namespace %q: %s", ns, strings.Join(errs, "; "))
	}

	name = spec.Name
	if name == "" {
		name = strings.ToLower(strings.ReplaceAll(string(id), "/", "-"))
	}
	if errs := validation.IsDNS1123Subdomain(name); len(errs) > 0 {
		return "", "", failure.Newf(failure.InvalidSpec, "bind identity", string(id),
			"service account name %q: %s", name, strings.Join(errs, "; "))
	}
	return name, ns, nil
}

func (b *Binder) translator() *policy.Translator {
	if b.Translator == nil {
		b.Translator = policy.NewTranslator(nil, nil, b.Logger)
	}
	return b.Translator
}
