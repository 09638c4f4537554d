package rollo

import (
	"context"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"

	"github.com/radiofrance/rollo/internal/logger"
	k8sutils "github.com/radiofrance/rollo/pkg/kubernetes"
)

// KubeApplier applies plain resources with a server side create-or-update.
type KubeApplier struct {
	clientSet kubernetes.Interface
	DryRun    bool // When dry-run mode is enabled, the cluster is never touched.
}

// NewKubeApplier creates a new instance of KubeApplier.
func NewKubeApplier(clientSet kubernetes.Interface) *KubeApplier {
	return &KubeApplier{
		clientSet: clientSet,
	}
}

// Apply creates or updates the given resource in the cluster.
func (a *KubeApplier) Apply(ctx context.Context, obj runtime.Object, release string) error {
	if a.DryRun {
		logger.Infof("[DRY-RUN] applying %s", obj.GetObjectKind().GroupVersionKind().Kind)
		return nil
	}

	return k8sutils.CreateOrUpdate(ctx, a.clientSet, obj, release)
}
