package platforms

import (
	"fmt"

	"github.com/rr7r44795y-lgtm/crosspost/app/models"
)

// Registry is a closed mapping from platform enum to adapter, resolved at
// startup. Unknown platform values yield a typed error, never a silent
// fallback.
type Registry struct {
	adapters map[models.Platform]Adapter
}

// UnknownPlatformError is returned when a schedule record references a
// platform no adapter is registered for.
type UnknownPlatformError struct {
	Platform models.Platform
}

func (e *UnknownPlatformError) Error() string {
	return fmt.Sprintf("no adapter registered for platform %q", e.Platform)
}

// NewRegistry builds the default adapter set covering every supported platform.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[models.Platform]Adapter)}
	r.register(NewInstagramAdapter())
	r.register(NewFacebookPageAdapter())
	r.register(NewLinkedInAdapter())
	r.register(NewYouTubeDraftAdapter())
	return r
}

// NewRegistryWith builds a registry from explicit adapters (used by tests).
func NewRegistryWith(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.register(a)
	}
	return r
}

func (r *Registry) register(a Adapter) {
	r.adapters[a.Platform()] = a
}

// Get resolves the adapter for a platform.
func (r *Registry) Get(platform models.Platform) (Adapter, error) {
	a, ok := r.adapters[platform]
	if !ok {
		return nil, &UnknownPlatformError{Platform: platform}
	}
	return a, nil
}
