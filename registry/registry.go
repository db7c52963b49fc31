// Package registry builds the batched check request from the eligible apps.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/st-keller/objid-poller/types"
)

// Builder enumerates eligible apps and turns them into a PollPayload.
// It remembers the display name of every app seen in the last build for
// use in notification text.
type Builder struct {
	enumerator types.Enumerator

	mu       sync.RWMutex
	names    map[string]string // appID -> display name
	entities []types.TrackedEntity
}

// New creates a Builder backed by the given enumerator.
func New(enumerator types.Enumerator) (*Builder, error) {
	if enumerator == nil {
		return nil, fmt.Errorf("enumerator required")
	}

	return &Builder{
		enumerator: enumerator,
		names:      make(map[string]string),
	}, nil
}

// Build lists the eligible apps and returns one authorization entry per app,
// in enumeration order. Duplicate ids keep their first occurrence.
// No eligible apps yields an empty payload and no error.
func (b *Builder) Build(ctx context.Context) (types.PollPayload, error) {
	entities, err := b.enumerator.ListEligibleEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate apps: %w", err)
	}

	payload := make(types.PollPayload, 0, len(entities))
	names := make(map[string]string, len(entities))
	kept := make([]types.TrackedEntity, 0, len(entities))

	for _, entity := range entities {
		if entity.ID == "" {
			continue
		}
		if _, seen := names[entity.ID]; seen {
			continue
		}
		names[entity.ID] = entity.Name
		kept = append(kept, entity)
		payload = append(payload, types.AppAuthorization{
			AppID:   entity.ID,
			AuthKey: entity.AuthKey,
		})
	}

	b.mu.Lock()
	b.names = names
	b.entities = kept
	b.mu.Unlock()

	return payload, nil
}

// Name returns the display name recorded for appID by the last Build.
// Unknown ids (or apps without a name) return the id itself.
func (b *Builder) Name(appID string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if name := b.names[appID]; name != "" {
		return name
	}
	return appID
}

// Entities returns the apps included in the last Build.
func (b *Builder) Entities() []types.TrackedEntity {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]types.TrackedEntity, len(b.entities))
	copy(out, b.entities)
	return out
}
