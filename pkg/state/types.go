package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	intercept "github.com/goliatone/go-intercept"
)

var ErrETagMismatch = errors.New("state: etag mismatch")

// Snapshot is the persisted source form for one scope: a plain mapping ready
// to install as an interception layer.
type Snapshot = map[string]any

// Ref identifies one persisted snapshot for one domain.
type Ref struct {
	Domain string
	Scope  intercept.Scope
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SourceID  string            `json:"source_id,omitempty"`
	ETag      string            `json:"etag,omitempty"`
	UpdatedAt time.Time         `json:"updated_at,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// Store loads/saves one snapshot for a single scope reference.
type Store interface {
	Load(ctx context.Context, ref Ref) (snapshot Snapshot, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, snapshot Snapshot, meta Meta) (Meta, error)
}

// Resolver orchestrates scoped loads and installs them as a layer chain.
type Resolver struct {
	Store Store
}

// Mutator adjusts a snapshot in place during Mutate.
type Mutator func(Snapshot) (Snapshot, error)

// Identifier returns the canonical storage key for the reference, derived
// from the unified scope model (system/tenant/org/team/user).
func (r Ref) Identifier() (string, error) {
	switch r.Scope.Name {
	case "system":
		return fmt.Sprintf("system/%s", r.Domain), nil
	case "tenant", "org", "team", "user":
		metadataKey := r.Scope.Name + "_id"
		id, ok := r.Scope.Metadata[metadataKey]
		if !ok {
			return "", fmt.Errorf("missing metadata key %q for scope %q", metadataKey, r.Scope.Name)
		}
		idString, ok := id.(string)
		if !ok || idString == "" {
			return "", fmt.Errorf("missing metadata key %q for scope %q", metadataKey, r.Scope.Name)
		}
		return fmt.Sprintf("%s/%s/%s", r.Scope.Name, idString, r.Domain), nil
	default:
		return "", fmt.Errorf("unsupported scope name %q", r.Scope.Name)
	}
}

// Chain loads one snapshot per scope and installs the resulting stack onto
// target, strongest scope winning. Scopes without a stored snapshot are
// skipped.
func (r Resolver) Chain(ctx context.Context, target *intercept.Object, domain string, scopes ...intercept.Scope) ([]*intercept.Layer, error) {
	if r.Store == nil {
		return nil, fmt.Errorf("state: store is required")
	}
	if target == nil {
		return nil, fmt.Errorf("state: target is required")
	}
	if domain == "" {
		return nil, fmt.Errorf("state: domain is required")
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("state: at least one scope is required")
	}

	bindings, err := r.loadBindings(ctx, domain, scopes)
	if err != nil {
		return nil, err
	}
	if len(bindings) == 0 {
		return nil, fmt.Errorf("state: no snapshots found for domain %q", domain)
	}

	stack, err := intercept.NewStack(bindings...)
	if err != nil {
		return nil, fmt.Errorf("state: stack: %w", err)
	}
	return stack.Install(target)
}

// ChainWithDefaults behaves like Chain but always includes an in-memory
// defaults binding at a priority weaker than every supplied scope.
func (r Resolver) ChainWithDefaults(ctx context.Context, target *intercept.Object, domain string, defaults Snapshot, scopes ...intercept.Scope) ([]*intercept.Layer, error) {
	if r.Store == nil {
		return nil, fmt.Errorf("state: store is required")
	}
	if target == nil {
		return nil, fmt.Errorf("state: target is required")
	}
	if domain == "" {
		return nil, fmt.Errorf("state: domain is required")
	}

	prioritySet := make(map[int]struct{}, len(scopes)+1)
	minPriority := 0
	if len(scopes) > 0 {
		minPriority = scopes[0].Priority
	}
	for _, scope := range scopes {
		if scope.Name == "defaults" {
			return nil, fmt.Errorf("state: scope name %q is reserved", "defaults")
		}
		prioritySet[scope.Priority] = struct{}{}
		if scope.Priority < minPriority {
			minPriority = scope.Priority
		}
	}

	defaultsPriority := 0
	if len(scopes) > 0 {
		defaultsPriority = minPriority - 1
		for {
			if _, ok := prioritySet[defaultsPriority]; !ok {
				break
			}
			defaultsPriority--
		}
	}

	bindings, err := r.loadBindings(ctx, domain, scopes)
	if err != nil {
		return nil, err
	}

	defaultsScope := intercept.NewScope("defaults", defaultsPriority, intercept.WithScopeLabel("Defaults"))
	bindings = append(bindings, intercept.NewBinding(defaultsScope, defaults))

	stack, err := intercept.NewStack(bindings...)
	if err != nil {
		return nil, fmt.Errorf("state: stack: %w", err)
	}
	return stack.Install(target)
}

// Flatten loads one snapshot per scope and merges them into a single mapping,
// strongest scope winning, without touching any target.
func (r Resolver) Flatten(ctx context.Context, domain string, scopes ...intercept.Scope) (Snapshot, error) {
	if r.Store == nil {
		return nil, fmt.Errorf("state: store is required")
	}
	if domain == "" {
		return nil, fmt.Errorf("state: domain is required")
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("state: at least one scope is required")
	}

	bindings, err := r.loadBindings(ctx, domain, scopes)
	if err != nil {
		return nil, err
	}
	if len(bindings) == 0 {
		return nil, fmt.Errorf("state: no snapshots found for domain %q", domain)
	}

	stack, err := intercept.NewStack(bindings...)
	if err != nil {
		return nil, fmt.Errorf("state: stack: %w", err)
	}
	return stack.Flatten(), nil
}

func (r Resolver) loadBindings(ctx context.Context, domain string, scopes []intercept.Scope) ([]intercept.Binding, error) {
	bindings := make([]intercept.Binding, 0, len(scopes))
	for _, scope := range scopes {
		snapshot, meta, ok, err := r.Store.Load(ctx, Ref{Domain: domain, Scope: scope})
		if err != nil {
			return nil, fmt.Errorf("state: load %q for scope %q: %w", domain, scope.Name, err)
		}
		if !ok {
			continue
		}
		bindings = append(bindings, intercept.NewBinding(scope, snapshot, intercept.WithSourceID(meta.SourceID)))
	}
	return bindings, nil
}

// Mutate loads one snapshot, applies fn, then saves under optimistic
// concurrency: a non-empty meta.ETag must match the stored ETag.
func (r Resolver) Mutate(ctx context.Context, ref Ref, meta Meta, fn Mutator) (Snapshot, Meta, error) {
	if r.Store == nil {
		return nil, Meta{}, fmt.Errorf("state: store is required")
	}
	if ref.Domain == "" {
		return nil, Meta{}, fmt.Errorf("state: domain is required")
	}
	if ref.Scope.Name == "" {
		return nil, Meta{}, fmt.Errorf("state: scope name is required")
	}
	if fn == nil {
		return nil, Meta{}, fmt.Errorf("state: mutator is required")
	}

	snapshot, loadedMeta, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("state: load %q for scope %q: %w", ref.Domain, ref.Scope.Name, err)
	}
	if !ok {
		snapshot = Snapshot{}
		loadedMeta = Meta{}
	}

	if meta.ETag != "" && loadedMeta.ETag != "" && meta.ETag != loadedMeta.ETag {
		return nil, loadedMeta, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, loadedMeta.ETag)
	}

	mutated, err := fn(snapshot)
	if err != nil {
		return nil, loadedMeta, err
	}
	if mutated == nil {
		mutated = snapshot
	}

	saveMeta := mergeMeta(loadedMeta, meta)
	savedMeta, err := r.Store.Save(ctx, ref, mutated, saveMeta)
	if err != nil {
		return nil, loadedMeta, fmt.Errorf("state: save %q for scope %q: %w", ref.Domain, ref.Scope.Name, err)
	}
	return mutated, savedMeta, nil
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SourceID != "" {
		out.SourceID = override.SourceID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}
