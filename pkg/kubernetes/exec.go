package kubernetes

import (
	"context"
	"fmt"
	"io"
	"os"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/cli-runtime/pkg/resource"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/kubectl/pkg/cmd/exec"
)

// ExecOptions wraps the kubectl exec.ExecOptions struct to add helper methods.
// It is used to run smoke probe commands inside the pods of a rollout target.
type ExecOptions struct {
	exec.ExecOptions
}

// NewExecOptions creates a new instance of ExecOptions with default values.
func NewExecOptions(clientSet kubernetes.Interface, restConfig rest.Config) *ExecOptions {
	restConfig.APIPath = "/api"
	restConfig.GroupVersion = &schema.GroupVersion{Group: "", Version: "v1"}
	restConfig.NegotiatedSerializer = scheme.Codecs.WithoutConversion()

	return &ExecOptions{
		exec.ExecOptions{
			StreamOptions: exec.StreamOptions{
				IOStreams: genericclioptions.IOStreams{
					In:     os.Stdin,
					Out:    os.Stdout,
					ErrOut: os.Stderr,
				},
				Stdin: false,
			},
			FilenameOptions: resource.FilenameOptions{},
			Executor:        &exec.DefaultRemoteExecutor{},
			PodClient:       clientSet.CoreV1(),
			Config:          &restConfig,
		},
	}
}

// WithContainer returns a copy of ExecOptions with pod options set to the given pod.
func (o ExecOptions) WithContainer(pod *corev1.Pod, container string) *ExecOptions {
	o.ExecOptions.Pod = pod
	o.ExecOptions.StreamOptions.Namespace = pod.Namespace
	o.ExecOptions.StreamOptions.PodName = pod.GetName()
	o.ExecOptions.StreamOptions.ContainerName = container

	return &o
}

// WithWriters returns a copy of ExecOptions with the given standard output and error output writers.
func (o ExecOptions) WithWriters(out, errOut io.Writer) *ExecOptions {
	o.ExecOptions.StreamOptions.IOStreams.Out = out
	o.ExecOptions.StreamOptions.IOStreams.ErrOut = errOut

	return &o
}

// Run executes the given command inside the configured pod.
func (o ExecOptions) Run(command []string) error {
	o.ExecOptions.Command = command

	return o.ExecOptions.Run()
}

// FindRunningPod returns a running pod matching the given label selector, to be used
// as the target of an exec probe. Pods that are terminating are skipped.
func FindRunningPod(ctx context.Context, clientSet kubernetes.Interface,
	namespace string, selector labels.Set,
) (*corev1.Pod, error) {
	pods, err := clientSet.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods matching %s: %w", selector, err)
	}

	for i := range pods.Items {
		pod := &pods.Items[i]
		if pod.Status.Phase == corev1.PodRunning && pod.DeletionTimestamp == nil {
			return pod, nil
		}
	}

	return nil, fmt.Errorf("no running pod matching %s in namespace %s", selector, namespace)
}
