package mock

import (
	"context"
	"sync"

	"k8s.io/apimachinery/pkg/runtime"
)

// Applier records every object it is asked to apply.
type Applier struct {
	Applied []runtime.Object
	Error   error
	lock    sync.Mutex
}

func (a *Applier) Apply(_ context.Context, obj runtime.Object, _ string) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	a.Applied = append(a.Applied, obj)
	return a.Error
}
