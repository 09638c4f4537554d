package dag

import (
	"fmt"

	"github.com/radiofrance/rollo/pkg/manifest"
	"gopkg.in/yaml.v3"
)

// Resource holds a Kubernetes object managed by the rollout, plus its scheduling state.
type Resource struct {
	Kind       string `yaml:"kind"`
	Name       string `yaml:"name"`
	Namespace  string `yaml:"namespace"`
	SourceFile string `yaml:"source_file"`
	// Strategy is the rollout strategy, only meaningful for Deployments.
	Strategy string             `yaml:"strategy,omitempty"`
	Document *manifest.Document `yaml:"-"`

	NeedsDeploy  bool `yaml:"-"`
	DeployDone   bool `yaml:"-"`
	DeployFailed bool `yaml:"-"`
}

// ID returns the "Kind/name" identifier of the resource.
func (r Resource) ID() string {
	return fmt.Sprintf("%s/%s", r.Kind, r.Name)
}

// FullName returns the namespaced display name of the resource.
func (r Resource) FullName() string {
	if r.Namespace == "" {
		return r.ID()
	}
	return fmt.Sprintf("%s/%s/%s", r.Kind, r.Namespace, r.Name)
}

func (r Resource) Print() string {
	strRes, err := yaml.Marshal(r)
	if err != nil {
		return err.Error()
	}
	return string(strRes)
}
