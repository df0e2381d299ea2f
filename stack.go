package intercept

import (
	"errors"
	"fmt"
	"sort"

	"github.com/goliatone/go-intercept/layering"
)

// Scope models a named precedence bucket (system, tenant, user, etc.). Higher
// priority values represent stronger layers.
type Scope struct {
	Name     string
	Label    string
	Priority int
	Metadata map[string]any
}

// ScopeOption configures metadata on Scope creation.
type ScopeOption func(*scopeConfig)

type scopeConfig struct {
	label    string
	metadata map[string]any
}

// WithScopeLabel sets a human-friendly label on the scope.
func WithScopeLabel(label string) ScopeOption {
	return func(cfg *scopeConfig) {
		cfg.label = label
	}
}

// WithScopeMetadata attaches arbitrary metadata to the scope. The map is
// copied so the resulting Scope remains immutable even if the caller mutates
// their reference.
func WithScopeMetadata(metadata map[string]any) ScopeOption {
	return func(cfg *scopeConfig) {
		if len(metadata) == 0 {
			return
		}
		cfg.metadata = copyMetadata(metadata)
	}
}

// NewScope builds a Scope with the supplied configuration. Validation is
// deferred to Stack construction so callers can assemble scopes before
// deciding precedence.
func NewScope(name string, priority int, opts ...ScopeOption) Scope {
	cfg := scopeConfig{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	return Scope{
		Name:     name,
		Label:    cfg.label,
		Priority: priority,
		Metadata: copyMetadata(cfg.metadata),
	}
}

// clone returns a copy of s, ensuring Metadata is detached from the original.
func (s Scope) clone() Scope {
	return Scope{
		Name:     s.Name,
		Label:    s.Label,
		Priority: s.Priority,
		Metadata: copyMetadata(s.Metadata),
	}
}

// Binding pairs a scope definition with the source snapshot captured for that
// scope.
type Binding struct {
	Scope    Scope
	Source   map[string]any
	SourceID string
}

// BindingOption configures optional metadata for a binding.
type BindingOption func(*Binding)

// WithSourceID sets the source snapshot identifier used for auditing.
func WithSourceID(id string) BindingOption {
	return func(binding *Binding) {
		binding.SourceID = id
	}
}

// NewBinding constructs a Binding with immutable copies of both the scope
// metadata and the source snapshot.
func NewBinding(scope Scope, source map[string]any, opts ...BindingOption) Binding {
	binding := Binding{
		Scope:  scope.clone(),
		Source: layering.Clone(source),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&binding)
	}
	return binding
}

var (
	// ErrScopeNameRequired indicates a missing scope name.
	ErrScopeNameRequired = errors.New("scope: name must be provided")
	// ErrDuplicateScopeName indicates Stack construction received multiple
	// bindings with the same scope name.
	ErrDuplicateScopeName = errors.New("scope: names must be unique")
	// ErrPriorityOrder indicates Stack construction detected duplicate or
	// unsorted priorities.
	ErrPriorityOrder = errors.New("scope: priorities must be strictly ordered")
)

// Stack represents an immutable, scope-aware set of source bindings ordered
// from strongest to weakest precedence.
type Stack struct {
	bindings []Binding
}

// NewStack validates and sorts the supplied bindings so that the strongest
// scope (highest priority) is first. Bindings and their sources are deep
// copied to guarantee read-only safety after construction.
func NewStack(bindings ...Binding) (*Stack, error) {
	if len(bindings) == 0 {
		return &Stack{}, nil
	}

	seenNames := make(map[string]struct{}, len(bindings))
	copied := make([]Binding, len(bindings))
	for i, binding := range bindings {
		binding := cloneBinding(binding)
		if binding.Scope.Name == "" {
			return nil, ErrScopeNameRequired
		}
		if _, ok := seenNames[binding.Scope.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateScopeName, binding.Scope.Name)
		}
		seenNames[binding.Scope.Name] = struct{}{}
		copied[i] = binding
	}

	sort.Slice(copied, func(i, j int) bool {
		if copied[i].Scope.Priority == copied[j].Scope.Priority {
			return copied[i].Scope.Name < copied[j].Scope.Name
		}
		return copied[i].Scope.Priority > copied[j].Scope.Priority
	})

	for i := 1; i < len(copied); i++ {
		if copied[i-1].Scope.Priority <= copied[i].Scope.Priority {
			return nil, fmt.Errorf("%w: %d", ErrPriorityOrder, copied[i].Scope.Priority)
		}
	}

	return &Stack{bindings: copied}, nil
}

// Bindings returns a defensive copy of the underlying bindings to preserve
// immutability guarantees.
func (s *Stack) Bindings() []Binding {
	if s == nil || len(s.bindings) == 0 {
		return nil
	}
	out := make([]Binding, len(s.bindings))
	for i := range s.bindings {
		out[i] = cloneBinding(s.bindings[i])
	}
	return out
}

// Len returns the number of bindings in the stack.
func (s *Stack) Len() int {
	if s == nil {
		return 0
	}
	return len(s.bindings)
}

// Install chains one interception layer per binding onto target, weakest
// scope first so the strongest scope ends up nearest the target and wins key
// conflicts. The returned layers are ordered strongest first, mirroring
// Bindings.
func (s *Stack) Install(target *Object, opts ...Option) ([]*Layer, error) {
	if s == nil || len(s.bindings) == 0 {
		return nil, fmt.Errorf("scope: stack must include at least one binding")
	}
	if target == nil {
		return nil, fmt.Errorf("scope: target is required")
	}
	layers := make([]*Layer, len(s.bindings))
	for i := len(s.bindings) - 1; i >= 0; i-- {
		source := layering.Clone(s.bindings[i].Source)
		layers[i] = Install(target, source, opts...)
	}
	return layers, nil
}

// Flatten merges every binding's source into a single mapping, strongest
// scope winning, for callers who want one layer instead of a chain.
func (s *Stack) Flatten() map[string]any {
	if s == nil || len(s.bindings) == 0 {
		return map[string]any{}
	}
	sources := make([]map[string]any, len(s.bindings))
	for i := range s.bindings {
		sources[i] = s.bindings[i].Source
	}
	merged := layering.MergeSources(sources...)
	if merged == nil {
		return map[string]any{}
	}
	return merged
}

func cloneBinding(binding Binding) Binding {
	return Binding{
		Scope:    binding.Scope.clone(),
		Source:   layering.Clone(binding.Source),
		SourceID: binding.SourceID,
	}
}

func copyMetadata(origin map[string]any) map[string]any {
	if len(origin) == 0 {
		return nil
	}
	out := make(map[string]any, len(origin))
	for key, value := range origin {
		out[key] = value
	}
	return out
}
