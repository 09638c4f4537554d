package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/radiofrance/rollo/internal/logger"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
)

const (
	defaultInterval = 5 * time.Second
	defaultTimeout  = 10 * time.Minute
	defaultCacheTTL = 10 * time.Second
)

// Config holds the configuration of the health poller.
type Config struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// CacheTTL bounds how long a status result can be served from cache.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Status is the health summary of a Deployment.
type Status struct {
	Ready     bool
	Desired   int32
	Updated   int32
	Available int32
	Message   string
}

// Checker polls the cluster and optional HTTP endpoints to decide whether a
// workload revision is healthy.
type Checker struct {
	clientSet  kubernetes.Interface
	httpClient *http.Client
	cache      *gocache.Cache
	interval   time.Duration
	timeout    time.Duration
}

// NewChecker creates a new instance of Checker.
func NewChecker(clientSet kubernetes.Interface, cfg Config) *Checker {
	if cfg.Interval == 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}

	return &Checker{
		clientSet:  clientSet,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		interval:   cfg.Interval,
		timeout:    cfg.Timeout,
	}
}

// WaitDeploymentReady blocks until the Deployment converged on its desired state.
// It returns an error when the deployment reports a failure condition, or when the
// poller times out.
func (c *Checker) WaitDeploymentReady(ctx context.Context, namespace, name string) error {
	logger.Debugf("Waiting for deployment %s/%s to become ready", namespace, name)

	err := wait.PollUntilContextTimeout(ctx, c.interval, c.timeout, true,
		func(ctx context.Context) (bool, error) {
			status, err := c.deploymentStatus(ctx, namespace, name)
			if err != nil {
				return false, err
			}
			if status.Message != "" {
				return false, fmt.Errorf("deployment %s/%s: %s", namespace, name, status.Message)
			}
			return status.Ready, nil
		})
	if err != nil {
		return fmt.Errorf("deployment %s/%s did not become ready: %w", namespace, name, err)
	}

	return nil
}

// CheckURL probes an HTTP endpoint, any 2xx status is considered healthy.
func (c *Checker) CheckURL(ctx context.Context, url string) error {
	var lastErr error

	err := wait.PollUntilContextTimeout(ctx, c.interval, c.timeout, true,
		func(ctx context.Context) (bool, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return false, err
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				lastErr = err
				logger.Debugf("Health probe %s failed: %v", url, err)
				return false, nil
			}
			_ = resp.Body.Close()

			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return true, nil
			}

			lastErr = fmt.Errorf("unexpected status %s", resp.Status)
			logger.Debugf("Health probe %s returned %s", url, resp.Status)
			return false, nil
		})
	if err != nil {
		if lastErr != nil {
			return fmt.Errorf("health probe %s never succeeded: %w (last error: %v)", url, err, lastErr)
		}
		return fmt.Errorf("health probe %s never succeeded: %w", url, err)
	}

	return nil
}

// DeploymentStatus returns the cached health summary of a Deployment.
// Results are cached so that repeated status queries do not hammer the API server.
func (c *Checker) DeploymentStatus(ctx context.Context, namespace, name string) (Status, error) {
	cacheKey := fmt.Sprintf("deployment/%s/%s", namespace, name)
	if cached, found := c.cache.Get(cacheKey); found {
		status, ok := cached.(Status)
		if ok {
			return status, nil
		}
	}

	status, err := c.deploymentStatus(ctx, namespace, name)
	if err != nil {
		return Status{}, err
	}

	c.cache.SetDefault(cacheKey, status)
	return status, nil
}

func (c *Checker) deploymentStatus(ctx context.Context, namespace, name string) (Status, error) {
	deploy, err := c.clientSet.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return Status{}, fmt.Errorf("failed to get deployment %s/%s: %w", namespace, name, err)
	}

	desired := int32(1)
	if deploy.Spec.Replicas != nil {
		desired = *deploy.Spec.Replicas
	}

	status := Status{
		Desired:   desired,
		Updated:   deploy.Status.UpdatedReplicas,
		Available: deploy.Status.AvailableReplicas,
	}

	for _, cond := range deploy.Status.Conditions {
		if cond.Type == appsv1.DeploymentReplicaFailure && cond.Status == corev1.ConditionTrue {
			status.Message = cond.Message
			return status, nil
		}
		if cond.Type == appsv1.DeploymentProgressing &&
			cond.Status == corev1.ConditionFalse &&
			cond.Reason == "ProgressDeadlineExceeded" {
			status.Message = cond.Message
			return status, nil
		}
	}

	status.Ready = deploy.Status.ObservedGeneration >= deploy.Generation &&
		deploy.Status.UpdatedReplicas == desired &&
		deploy.Status.AvailableReplicas == desired &&
		deploy.Status.Replicas == desired

	return status, nil
}
