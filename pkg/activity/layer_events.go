package activity

import (
	"strings"
	"time"
)

// ScopeContext captures scope metadata associated with a layer's source
// snapshot.
type ScopeContext struct {
	Name     string
	Label    string
	Priority int
	Metadata map[string]any
	SourceID string
}

// LayerEventInput describes the common fields for layer lifecycle events.
type LayerEventInput struct {
	LayerID    string
	ActorID    string
	UserID     string
	TenantID   string
	Channel    string
	Definition string
	Metadata   map[string]any
	Keys       []string
	Scope      ScopeContext
	OccurredAt time.Time
}

// BuildLayerInstalledEvent constructs a normalized activity event for a layer
// installation.
func BuildLayerInstalledEvent(input LayerEventInput) Event {
	return buildLayerEvent("layer.installed", input)
}

// BuildLayerRemovedEvent constructs a normalized activity event for a layer
// removal (the target's prototype being reset past the layer).
func BuildLayerRemovedEvent(input LayerEventInput) Event {
	return buildLayerEvent("layer.removed", input)
}

func buildLayerEvent(verb string, input LayerEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if len(input.Keys) > 0 {
		metadata = ensureMetadata(metadata)
		metadata["keys"] = append([]string{}, input.Keys...)
	}
	if input.Scope.Name != "" {
		metadata = ensureMetadata(metadata)
		metadata["scope_name"] = input.Scope.Name
		metadata["scope_priority"] = input.Scope.Priority
		if input.Scope.Label != "" {
			metadata["scope_label"] = input.Scope.Label
		}
		if len(input.Scope.Metadata) > 0 {
			metadata["scope_metadata"] = cloneMap(input.Scope.Metadata)
		}
	}
	if input.Scope.SourceID != "" {
		metadata = ensureMetadata(metadata)
		metadata["source_id"] = input.Scope.SourceID
	}

	objectID := strings.TrimSpace(input.LayerID)
	if objectID == "" {
		objectID = strings.TrimSpace(input.Scope.SourceID)
	}
	if objectID == "" {
		objectID = "intercept.layer"
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: "intercept.layer",
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Definition: strings.TrimSpace(input.Definition),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
