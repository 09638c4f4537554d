package rollo

import (
	"context"
	"fmt"
	"sync"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/radiofrance/rollo/internal/logger"
	"github.com/radiofrance/rollo/pkg/dag"
	k8sutils "github.com/radiofrance/rollo/pkg/kubernetes"
	"github.com/radiofrance/rollo/pkg/types"
)

// Plan decides which resources need to be rolled out. A resource needs a rollout
// when the live object is missing or its checksum annotation differs from the
// manifest. When forceRedeploy is set, or no clientSet is available, every
// resource is marked. With checkImages, the plan also verifies that every
// container image referenced by a Deployment exists in the registry before
// anything is applied to the cluster.
func Plan(
	ctx context.Context,
	graph *dag.DAG,
	clientSet kubernetes.Interface,
	registry types.ContainerRegistry,
	forceRedeploy, checkImages bool,
) error {
	if forceRedeploy || clientSet == nil {
		if forceRedeploy {
			logger.Infof("force redeploy mode enabled, all resources will be rolled out regardless of their changes")
		}
		graph.Walk(func(node *dag.Node) {
			node.Resource.NeedsDeploy = true
		})
	} else {
		if err := checkNeedsDeploy(ctx, graph, clientSet); err != nil {
			return err
		}
	}

	if !checkImages || registry == nil {
		return nil
	}

	refExistsMap, err := refExistsMapForImages(graph, registry)
	if err != nil {
		return err
	}

	return checkImagesExist(graph, refExistsMap)
}

// checkNeedsDeploy iterates over the graph to find out which live objects are
// missing or outdated, and must be rolled out.
func checkNeedsDeploy(ctx context.Context, graph *dag.DAG, clientSet kubernetes.Interface) error {
	checksumMap := &sync.Map{}
	err := graph.WalkAsyncErr(func(node *dag.Node) error {
		res := node.Resource
		checksum, found, err := k8sutils.GetLiveChecksum(ctx, clientSet, res.Kind, res.Namespace, res.Name)
		if err != nil {
			return err
		}
		if found {
			checksumMap.Store(res.ID(), checksum)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error during api call to check live resources: %w", err)
	}

	graph.Walk(func(node *dag.Node) {
		res := node.Resource
		liveChecksum, found := checksumMap.Load(res.ID())
		if found && liveChecksum.(string) == res.Document.Checksum { //nolint:forcetypeassert
			logger.Debugf("Resource %s is up to date, no rollout required", res.ID())
			return
		}

		logger.Infof("Resource %s is missing or outdated, it must be rolled out", res.ID())
		res.NeedsDeploy = true
	})

	return nil
}

// checkImagesExist iterates over the graph to find out which Deployments
// reference images the registry does not know about.
func checkImagesExist(graph *dag.DAG, refExistsMap *sync.Map) error {
	return graph.WalkErr(func(node *dag.Node) error {
		if !node.Resource.NeedsDeploy {
			return nil
		}
		for _, ref := range deploymentImages(node.Resource) {
			refExists, present := refExistsMap.Load(ref)
			if !present {
				return fmt.Errorf("could not check if %s exists", ref)
			}
			if !refExists.(bool) { //nolint:forcetypeassert
				return fmt.Errorf("resource %s references image %s which does not exist in the registry",
					node.Resource.ID(), ref)
			}
			logger.Debugf("Ref \"%s\" exists in the registry", ref)
		}
		return nil
	})
}

func refExistsMapForImages(graph *dag.DAG, registry types.ContainerRegistry) (*sync.Map, error) {
	refExistsMap := &sync.Map{}
	err := graph.WalkAsyncErr(func(node *dag.Node) error {
		if !node.Resource.NeedsDeploy {
			return nil
		}
		for _, ref := range deploymentImages(node.Resource) {
			refAlreadyExists, err := registry.RefExists(ref)
			if err != nil {
				return err
			}
			refExistsMap.Store(ref, refAlreadyExists)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error during api call to check registry if image exists: %w", err)
	}
	return refExistsMap, nil
}

// deploymentImages returns the container images of a Deployment resource, init
// containers included. Other kinds have none.
func deploymentImages(res *dag.Resource) []string {
	deploy, ok := res.Document.Object.(*appsv1.Deployment)
	if !ok {
		return nil
	}

	var images []string
	for _, container := range deploy.Spec.Template.Spec.InitContainers {
		images = append(images, container.Image)
	}
	for _, container := range deploy.Spec.Template.Spec.Containers {
		images = append(images, container.Image)
	}
	return images
}
