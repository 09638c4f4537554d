package registry

import (
	"github.com/radiofrance/rollo/internal/logger"
	registry "gitlab.com/radiofrance/go-container-registry"
)

// Registry wraps the container registry client library, used to verify that the
// images referenced by the manifests exist before anything is rolled out.
type Registry struct {
	gcr    *registry.Registry
	dryRun bool
}

// NewRegistry creates a new instance of Registry.
func NewRegistry(url string, dryRun bool) (*Registry, error) {
	gcr, err := registry.New(url)
	if err != nil {
		return nil, err
	}

	return &Registry{gcr, dryRun}, nil
}

// RefExists checks if the registry contains the image ref.
func (r Registry) RefExists(imageRef string) (bool, error) {
	if r.dryRun {
		logger.Infof("[DRY-RUN] Checking if image ref \"%s\" exists", imageRef)
	}
	return r.gcr.RefExists(imageRef)
}
