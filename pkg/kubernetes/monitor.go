package kubernetes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/radiofrance/rollo/internal/logger"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/rand"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
)

// monitorTimeout bounds how long a single watch-based monitor can run.
const monitorTimeout = 30 * time.Minute

// MonitorDeployment waits for a Deployment to converge on its desired state.
// The function is non-blocking, it returns 2 channels that will be used as event dispatchers:
//   - When all replicas of the new revision are available, nil is sent to doneChan.
//   - When the deployment reports a ReplicaFailure or ProgressDeadlineExceeded condition,
//     an error is sent to doneChan.
//   - When the first replica of the new revision becomes available, an empty struct is
//     sent to readyChan.
//   - If the timeout is reached, or the context is cancelled, an error is sent to doneChan.
//
// minGeneration is the metadata.generation of the revision being rolled out. Watches
// opened without a resourceVersion replay the current state of the deployment first,
// so events describing an older revision are ignored, otherwise an already converged
// previous revision would satisfy the convergence check immediately.
func MonitorDeployment(ctx context.Context, watcher watch.Interface, minGeneration int64) (chan struct{}, chan error) {
	readyChan := make(chan struct{})
	doneChan := make(chan error)
	ready := false

	go func() {
		defer close(doneChan)
		defer close(readyChan)
		for {
			select {
			case event, chanOk := <-watcher.ResultChan():
				if !chanOk {
					return
				}
				deploy, ok := event.Object.(*appsv1.Deployment)
				if !ok {
					// The watcher may deliver other resource types, or the deployment was
					// deleted before the watcher was stopped. We only care about status updates.
					break
				}

				logger.Debugf("Deployment %s/%s %s, %d/%d replicas available", deploy.Namespace,
					deploy.Name, event.Type, deploy.Status.AvailableReplicas, desiredReplicas(deploy))

				if event.Type == watch.Deleted {
					doneChan <- fmt.Errorf("deployment %s was deleted while waiting for rollout", deploy.Name)
					return
				}

				// The status only describes the revision the deployment controller last
				// observed. Until it reports against the applied generation, replica counts
				// and conditions still belong to the previous revision.
				if deploy.Generation < minGeneration || deploy.Status.ObservedGeneration < deploy.Generation {
					break
				}

				if failure := failedCondition(deploy); failure != "" {
					doneChan <- fmt.Errorf("deployment %s failed to progress: %s", deploy.Name, failure)
					return
				}

				if !ready && deploy.Status.AvailableReplicas > 0 {
					ready = true
					logger.Infof("Deployment %s/%s has available replicas", deploy.Namespace, deploy.Name)
					readyChan <- struct{}{}
				}

				if converged(deploy) {
					logger.Infof("Deployment %s/%s rollout complete", deploy.Namespace, deploy.Name)
					doneChan <- nil
					return
				}
			case <-time.After(monitorTimeout):
				doneChan <- errors.New("timeout waiting for deployment rollout to complete")
				return
			case <-ctx.Done():
				doneChan <- fmt.Errorf("stop waiting for deployment: %w", ctx.Err())
				return
			}
		}
	}()

	return readyChan, doneChan
}

// converged checks that the deployment controller observed the latest revision
// and that every desired replica is updated and available.
func converged(deploy *appsv1.Deployment) bool {
	desired := desiredReplicas(deploy)

	return deploy.Status.ObservedGeneration >= deploy.Generation &&
		deploy.Status.UpdatedReplicas == desired &&
		deploy.Status.AvailableReplicas == desired &&
		deploy.Status.Replicas == desired
}

func desiredReplicas(deploy *appsv1.Deployment) int32 {
	if deploy.Spec.Replicas == nil {
		return 1
	}
	return *deploy.Spec.Replicas
}

func failedCondition(deploy *appsv1.Deployment) string {
	for _, cond := range deploy.Status.Conditions {
		if cond.Type == appsv1.DeploymentReplicaFailure && cond.Status == corev1.ConditionTrue {
			return cond.Message
		}
		if cond.Type == appsv1.DeploymentProgressing &&
			cond.Status == corev1.ConditionFalse &&
			cond.Reason == "ProgressDeadlineExceeded" {
			return cond.Message
		}
	}
	return ""
}

// PrintPodLogs watches the logs of a container in a pod and writes them to the given io.Writer.
// The function is blocking, and will continue to print logs until the log stream is no longer
// readable, most likely because the container exited.
func PrintPodLogs(ctx context.Context, out io.Writer, k8s kubernetes.Interface,
	namespace, pod, container string,
) {
	req := k8s.CoreV1().Pods(namespace).GetLogs(pod, &corev1.PodLogOptions{
		Container: container,
		Follow:    true,
	})
	podLogs, err := req.Stream(ctx)
	if err != nil {
		logger.Errorf("Failed to stream logs for pod %s: %v", pod, err)
		return
	}
	defer func() {
		_ = podLogs.Close()
	}()
	for {
		buf := make([]byte, 2000)
		numBytes, err := podLogs.Read(buf)
		if errors.Is(err, io.EOF) {
			return
		}
		if numBytes == 0 {
			continue
		}
		if err != nil {
			logger.Errorf("Error reading logs buffer of pod %s: %v", pod, err)
			return
		}
		if _, err := out.Write(buf[:numBytes]); err != nil {
			logger.Errorf("Error writing log to output: %v", err)
			return
		}
	}
}

// UniqueName generates a unique object name with random characters.
// An identifier string passed as argument will be included in the generated name,
// which always fits the 63 characters limit of Kubernetes names.
func UniqueName(identifier string) func() string {
	return func() string {
		identifier = strings.ReplaceAll(identifier, ":", "-")
		identifier = strings.ReplaceAll(identifier, "/", "-")
		identifier = strings.ReplaceAll(identifier, "_", "-")
		base := identifier
		maxNameLength, randomLength := 63, 8
		maxGeneratedNameLength := maxNameLength - randomLength - 1
		if len(base) > maxGeneratedNameLength {
			base = base[:maxGeneratedNameLength]
		}

		return strings.ToLower(fmt.Sprintf("%s-%s", base, rand.String(randomLength)))
	}
}
