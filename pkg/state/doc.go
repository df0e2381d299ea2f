// Package state defines persistence-facing contracts for loading and saving
// per-scope source snapshots, plus a small resolver that orchestrates scope
// loading and delegates layering to the core intercept primitives.
//
// Responsibilities:
//   - Store only loads/saves a single snapshot for a single Ref.
//   - Resolver loads snapshots for multiple scopes and installs them by
//     constructing intercept.Binding + intercept.Stack chains, or flattens
//     them into one merged mapping.
//   - The core intercept package remains persistence-agnostic; all
//     persistence logic stays behind Store implementations supplied by
//     consumers.
//
// Data flow:
//
//	Store -> Resolver -> intercept.NewStack(...).Install(target) -> []*intercept.Layer
//
// Provenance:
//
//	Meta.SourceID is mapped onto intercept.Binding.SourceID (via
//	intercept.WithSourceID), which is observable through Stack.Bindings().
//
// Deterministic keys:
//
//	Ref.Identifier() provides a canonical storage key format based on the
//	unified scope model (system/tenant/org/team/user).
package state
