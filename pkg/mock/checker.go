package mock

import (
	"context"
	"sync"
)

// HealthChecker reports the configured errors and records the checks performed.
type HealthChecker struct {
	ReadyError   error
	URLError     error
	ReadyChecked []string
	URLsChecked  []string
	lock         sync.Mutex
}

func (c *HealthChecker) WaitDeploymentReady(_ context.Context, namespace, name string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.ReadyChecked = append(c.ReadyChecked, namespace+"/"+name)
	return c.ReadyError
}

func (c *HealthChecker) CheckURL(_ context.Context, url string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.URLsChecked = append(c.URLsChecked, url)
	return c.URLError
}
