package rollo

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/radiofrance/rollo/internal/logger"
	"github.com/radiofrance/rollo/pkg/dag"
	k8sutils "github.com/radiofrance/rollo/pkg/kubernetes"
	"github.com/radiofrance/rollo/pkg/manifest"
	"github.com/radiofrance/rollo/pkg/ratelimit"
	"github.com/radiofrance/rollo/pkg/report"
	"github.com/radiofrance/rollo/pkg/types"
)

// Applier creates or updates a plain resource in the cluster, without any
// rollout orchestration. Deployments go through a Strategy instead.
type Applier interface {
	Apply(ctx context.Context, obj runtime.Object, release string) error
}

// Deploy iterates over the graph to roll out all resources that are marked for
// deployment. It also collects the reports and prints them to the user.
func Deploy(
	ctx context.Context,
	graph *dag.DAG,
	strategies map[string]types.Strategy,
	applier Applier,
	rateLimiter ratelimit.RateLimiter,
	rolloutReport *report.Report,
) error {
	machine := newStateMachine(graph)
	reportChan := make(chan report.RolloutReport)
	wgDeploy := sync.WaitGroup{}

	graph.Walk(func(node *dag.Node) {
		if !node.Resource.NeedsDeploy {
			return
		}

		wgDeploy.Add(1)
		go deployNode(ctx, node, strategies, applier, rateLimiter, machine, &wgDeploy, reportChan,
			rolloutReport.ReleaseName, rolloutReport.GetLogsDir())
	})

	go func() {
		wgDeploy.Wait()
		close(reportChan)
	}()

	var reports []report.RolloutReport
	for resourceReport := range reportChan {
		reports = append(reports, resourceReport)
	}

	rolloutReport.RolloutReports = reports
	report.PrintReports(reports)
	if err := report.Generate(*rolloutReport); err != nil {
		return err
	}

	return report.CheckError(reports)
}

// deployNode rolls out the resource on the given node, once all its parents
// completed their own rollout.
func deployNode(
	ctx context.Context,
	node *dag.Node,
	strategies map[string]types.Strategy,
	applier Applier,
	rateLimiter ratelimit.RateLimiter,
	machine *stateMachine,
	wgDeploy *sync.WaitGroup,
	reportChan chan report.RolloutReport,
	release string,
	logsDir string,
) {
	defer wgDeploy.Done()

	node.WaitCond.L.Lock()
	defer func() {
		node.WaitCond.Broadcast()
		node.WaitCond.L.Unlock()
	}()

	res := node.Resource
	resourceReport := report.RolloutReport{
		ResourceID: res.ID(),
		Strategy:   res.Strategy,
	}

	// Wait for all parents to complete their rollout
	for _, parent := range node.Parents() {
		parent.WaitCond.L.Lock()
		for parent.Resource.NeedsDeploy && !(parent.Resource.DeployDone || parent.Resource.DeployFailed) {
			logger.Debugf("Resource %s is waiting on %s to complete", res.ID(), parent.Resource.ID())
			parent.WaitCond.Wait()
		}
		parent.WaitCond.L.Unlock()
	}

	// Return if any parent rollout failed
	for _, parent := range node.Parents() {
		if parent.Resource.DeployFailed {
			res.DeployFailed = true
			if err := machine.Transition(res.ID(), StateSkipped); err != nil {
				logger.Warnf("%v", err)
			}
			resourceReport.Status = report.RolloutStatusSkipped
			reportChan <- resourceReport
			return
		}
	}

	startedAt := time.Now()
	err := doDeploy(ctx, node, strategies, applier, rateLimiter, machine, release, logsDir)
	resourceReport.Duration = time.Since(startedAt)
	if err != nil {
		res.DeployFailed = true
		failNode(machine, res.ID())
		reportChan <- resourceReport.WithError(err)
		return
	}

	if err := machine.Transition(res.ID(), StateSucceeded); err != nil {
		logger.Warnf("%v", err)
	}
	resourceReport.Status = report.RolloutStatusSuccess
	reportChan <- resourceReport
	res.DeployDone = true
}

// doDeploy does the effective rollout action.
func doDeploy(
	ctx context.Context,
	node *dag.Node,
	strategies map[string]types.Strategy,
	applier Applier,
	rateLimiter ratelimit.RateLimiter,
	machine *stateMachine,
	release string,
	logsDir string,
) error {
	rateLimiter.Acquire()
	defer rateLimiter.Release()

	res := node.Resource
	doc := res.Document

	if err := machine.Transition(res.ID(), StateApplying); err != nil {
		return err
	}

	if err := k8sutils.SetChecksum(doc.Object, doc.Checksum); err != nil {
		return err
	}

	deploy, ok := doc.Object.(*appsv1.Deployment)
	if !ok {
		logger.Infof("Applying %s", res.ID())
		return applier.Apply(ctx, doc.Object, release)
	}

	strategy, err := pickStrategy(strategies, res.Strategy)
	if err != nil {
		return err
	}

	steps, err := parseCanarySteps(doc.Annotations[manifest.AnnotationCanarySteps])
	if err != nil {
		return fmt.Errorf("resource %s: %w", res.ID(), err)
	}

	logOutput, closeLog, err := rolloutLogOutput(logsDir, res)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Infof("Rolling out %s with the %s strategy", res.ID(), strategy.Name())

	return strategy.Rollout(ctx, types.RolloutOptions{
		Deployment:  deploy,
		Release:     release,
		ServiceName: doc.Annotations[manifest.AnnotationService],
		HealthURL:   doc.Annotations[manifest.AnnotationHealthURL],
		CanarySteps: steps,
		LogOutput:   logOutput,
		Transition: func(phase string) error {
			return machine.Transition(res.ID(), State(phase))
		},
	})
}

func pickStrategy(strategies map[string]types.Strategy, name string) (types.Strategy, error) {
	if name == "" {
		name = types.StrategyRolling
	}
	strategy, ok := strategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown rollout strategy %q", name)
	}
	return strategy, nil
}

// failNode moves a resource to the failed state, unless the strategy already
// landed it on a terminal state such as rolled-back.
func failNode(machine *stateMachine, resourceID string) {
	if isTerminal(machine.Current(resourceID)) {
		return
	}
	if err := machine.Transition(resourceID, StateFailed); err != nil {
		logger.Warnf("%v", err)
	}
}

func isTerminal(state State) bool {
	switch state {
	case StateSucceeded, StateFailed, StateRolledBack, StateSkipped:
		return true
	}
	return false
}

// rolloutLogOutput opens the per-resource log file where strategies write pod
// logs and other diagnostics. When no logs directory is configured, diagnostics
// go to stderr.
func rolloutLogOutput(logsDir string, res *dag.Resource) (io.Writer, func(), error) {
	if logsDir == "" {
		return os.Stderr, func() {}, nil
	}

	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create folder %s: %w", logsDir, err)
	}

	filePath := path.Join(logsDir, fmt.Sprintf("%s.txt", strings.ReplaceAll(res.ID(), "/", "_")))
	fileOutput, err := os.Create(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create file %s: %w", filePath, err)
	}

	return fileOutput, func() { _ = fileOutput.Close() }, nil
}

// parseCanarySteps parses a comma separated list of percentages, e.g. "25,50,100".
func parseCanarySteps(value string) ([]int, error) {
	if value == "" {
		return nil, nil
	}

	var steps []int
	for _, field := range strings.Split(value, ",") {
		step, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("invalid canary steps %q: %w", value, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}
