package kubernetes

import (
	"k8s.io/client-go/tools/clientcmd"
)

// DefaultNamespace is used when the kubeconfig context does not set a namespace.
const DefaultNamespace = "default"

// CurrentNamespace returns the namespace of the current kubeconfig context,
// falling back to DefaultNamespace. Only the local kubeconfig is read, no
// cluster connection is needed.
func CurrentNamespace() string {
	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		clientcmd.NewDefaultClientConfigLoadingRules(), &clientcmd.ConfigOverrides{})

	namespace, _, err := clientConfig.Namespace()
	if err != nil || namespace == "" {
		return DefaultNamespace
	}
	return namespace
}
