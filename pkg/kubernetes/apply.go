package kubernetes

import (
	"context"
	"fmt"

	"github.com/radiofrance/rollo/internal/logger"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
)

const (
	// LabelManagedBy marks every object created or updated by rollo.
	LabelManagedBy = "app.kubernetes.io/managed-by"
	// LabelRelease carries the release identifier of the rollout that last touched the object.
	LabelRelease = "rollo.radiofrance.dev/release"
	// ManagerName is the value set on the managed-by label.
	ManagerName = "rollo"
)

// StampLabels adds the rollo ownership labels to a label map, allocating it if needed.
func StampLabels(labels map[string]string, release string) map[string]string {
	if labels == nil {
		labels = map[string]string{}
	}
	labels[LabelManagedBy] = ManagerName
	if release != "" {
		labels[LabelRelease] = release
	}
	return labels
}

// CreateOrUpdate applies a typed object to the cluster: it creates the object if it
// does not exist yet, and updates it in place otherwise. Only the resource kinds
// managed by rollo are supported.
func CreateOrUpdate(ctx context.Context, clientSet kubernetes.Interface, obj runtime.Object, release string) error {
	switch res := obj.(type) {
	case *corev1.Namespace:
		res.Labels = StampLabels(res.Labels, release)
		return createOrUpdate(ctx,
			func(ctx context.Context) error {
				_, err := clientSet.CoreV1().Namespaces().Create(ctx, res, metav1.CreateOptions{})
				return err
			},
			func(ctx context.Context) error {
				_, err := clientSet.CoreV1().Namespaces().Update(ctx, res, metav1.UpdateOptions{})
				return err
			},
			"Namespace", res.Name)
	case *corev1.ConfigMap:
		res.Labels = StampLabels(res.Labels, release)
		return createOrUpdate(ctx,
			func(ctx context.Context) error {
				_, err := clientSet.CoreV1().ConfigMaps(res.Namespace).Create(ctx, res, metav1.CreateOptions{})
				return err
			},
			func(ctx context.Context) error {
				_, err := clientSet.CoreV1().ConfigMaps(res.Namespace).Update(ctx, res, metav1.UpdateOptions{})
				return err
			},
			"ConfigMap", res.Name)
	case *corev1.Secret:
		res.Labels = StampLabels(res.Labels, release)
		return createOrUpdate(ctx,
			func(ctx context.Context) error {
				_, err := clientSet.CoreV1().Secrets(res.Namespace).Create(ctx, res, metav1.CreateOptions{})
				return err
			},
			func(ctx context.Context) error {
				_, err := clientSet.CoreV1().Secrets(res.Namespace).Update(ctx, res, metav1.UpdateOptions{})
				return err
			},
			"Secret", res.Name)
	case *corev1.Service:
		res.Labels = StampLabels(res.Labels, release)
		return applyService(ctx, clientSet, res)
	case *networkingv1.Ingress:
		res.Labels = StampLabels(res.Labels, release)
		return createOrUpdate(ctx,
			func(ctx context.Context) error {
				_, err := clientSet.NetworkingV1().Ingresses(res.Namespace).Create(ctx, res, metav1.CreateOptions{})
				return err
			},
			func(ctx context.Context) error {
				_, err := clientSet.NetworkingV1().Ingresses(res.Namespace).Update(ctx, res, metav1.UpdateOptions{})
				return err
			},
			"Ingress", res.Name)
	case *appsv1.Deployment:
		res.Labels = StampLabels(res.Labels, release)
		return createOrUpdate(ctx,
			func(ctx context.Context) error {
				_, err := clientSet.AppsV1().Deployments(res.Namespace).Create(ctx, res, metav1.CreateOptions{})
				return err
			},
			func(ctx context.Context) error {
				_, err := clientSet.AppsV1().Deployments(res.Namespace).Update(ctx, res, metav1.UpdateOptions{})
				return err
			},
			"Deployment", res.Name)
	default:
		return fmt.Errorf("unsupported object type %T", obj)
	}
}

// applyService updates a Service while preserving its allocated ClusterIP,
// which is immutable once set.
func applyService(ctx context.Context, clientSet kubernetes.Interface, svc *corev1.Service) error {
	existing, err := clientSet.CoreV1().Services(svc.Namespace).Get(ctx, svc.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err := clientSet.CoreV1().Services(svc.Namespace).Create(ctx, svc, metav1.CreateOptions{})
		if err != nil {
			return fmt.Errorf("failed to create Service %s: %w", svc.Name, err)
		}
		logger.Debugf("Created Service %s/%s", svc.Namespace, svc.Name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get Service %s: %w", svc.Name, err)
	}

	svc.ResourceVersion = existing.ResourceVersion
	svc.Spec.ClusterIP = existing.Spec.ClusterIP
	svc.Spec.ClusterIPs = existing.Spec.ClusterIPs

	_, err = clientSet.CoreV1().Services(svc.Namespace).Update(ctx, svc, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("failed to update Service %s: %w", svc.Name, err)
	}
	logger.Debugf("Updated Service %s/%s", svc.Namespace, svc.Name)
	return nil
}

func createOrUpdate(ctx context.Context,
	create, update func(context.Context) error,
	kind, name string,
) error {
	err := create(ctx)
	if err == nil {
		logger.Debugf("Created %s %s", kind, name)
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create %s %s: %w", kind, name, err)
	}

	if err := update(ctx); err != nil {
		return fmt.Errorf("failed to update %s %s: %w", kind, name, err)
	}
	logger.Debugf("Updated %s %s", kind, name)
	return nil
}
