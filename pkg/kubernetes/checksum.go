package kubernetes

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"

	"github.com/radiofrance/rollo/pkg/manifest"
)

// SetChecksum stamps the manifest checksum annotation on an object, so a later
// plan can tell whether the live object matches the manifest.
func SetChecksum(obj runtime.Object, checksum string) error {
	accessor, err := meta.Accessor(obj)
	if err != nil {
		return fmt.Errorf("cannot access object metadata: %w", err)
	}

	annotations := accessor.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	annotations[manifest.AnnotationChecksum] = checksum
	accessor.SetAnnotations(annotations)
	return nil
}

// GetLiveChecksum fetches the checksum annotation of the live object. The second
// return value reports whether the object exists in the cluster.
func GetLiveChecksum(ctx context.Context, clientSet kubernetes.Interface,
	kind, namespace, name string,
) (string, bool, error) {
	var (
		obj metav1.Object
		err error
	)

	switch kind {
	case "Namespace":
		obj, err = clientSet.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	case "ConfigMap":
		obj, err = clientSet.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
	case "Secret":
		obj, err = clientSet.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	case "Service":
		obj, err = clientSet.CoreV1().Services(namespace).Get(ctx, name, metav1.GetOptions{})
	case "Ingress":
		obj, err = clientSet.NetworkingV1().Ingresses(namespace).Get(ctx, name, metav1.GetOptions{})
	case "Deployment":
		obj, err = clientSet.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	default:
		return "", false, fmt.Errorf("unsupported kind %s", kind)
	}

	if apierrors.IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s %s/%s: %w", kind, namespace, name, err)
	}

	return obj.GetAnnotations()[manifest.AnnotationChecksum], true, nil
}
