package release

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Release identifies a single rollout run.
type Release struct {
	// ID is unique per run.
	ID string `yaml:"id"`
	// Hash identifies the content of the manifest tree, and is stable across runs
	// as long as the manifests do not change.
	Hash string `yaml:"hash"`
	// Name is the display name of the release: a custom name when provided,
	// the manifest hash otherwise.
	Name      string    `yaml:"name"`
	StartedAt time.Time `yaml:"started_at"`
}

// NewRelease computes the release identity of a rollout run for the given manifest tree.
func NewRelease(manifestsPath, customName string) (Release, error) {
	hash, err := HashManifests(manifestsPath)
	if err != nil {
		return Release{}, fmt.Errorf("cannot compute release hash: %w", err)
	}

	name := customName
	if name == "" {
		name = hash
	}

	return Release{
		ID:        uuid.NewString(),
		Hash:      hash,
		Name:      name,
		StartedAt: time.Now().UTC(),
	}, nil
}
