package report

import (
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/radiofrance/rollo/internal/logger"
	"gopkg.in/yaml.v3"
)

const (
	RolloutStatusSkipped RolloutStatus = iota
	RolloutStatusSuccess
	RolloutStatusError
)

type RolloutStatus int

func (s RolloutStatus) String() string {
	switch s {
	case RolloutStatusSuccess:
		return "success"
	case RolloutStatusError:
		return "error"
	case RolloutStatusSkipped:
		return "skipped"
	}
	return "unknown"
}

// Report aggregates the outcome of a whole rollout run.
type Report struct {
	ReleaseName    string          `yaml:"release_name"`
	ReleaseID      string          `yaml:"release_id"`
	GenerationDate time.Time       `yaml:"generation_date"`
	RolloutReports []RolloutReport `yaml:"rollouts"`

	// Dir is where the report file is written. Not serialized.
	Dir string `yaml:"-"`
}

// RolloutReport holds the status of a single resource rollout.
type RolloutReport struct {
	ResourceID     string        `yaml:"resource"`
	Strategy       string        `yaml:"strategy,omitempty"`
	Status         RolloutStatus `yaml:"-"`
	StatusString   string        `yaml:"status"`
	Duration       time.Duration `yaml:"duration"`
	FailureMessage string        `yaml:"failure_message,omitempty"`
}

// GetLogsDir returns the directory where per-resource rollout logs are written.
func (r Report) GetLogsDir() string {
	if r.Dir == "" {
		return ""
	}
	return path.Join(r.Dir, "logs")
}

// WithError returns a RolloutReport flagged as failed with the given error.
func (r RolloutReport) WithError(err error) RolloutReport {
	r.Status = RolloutStatusError
	r.FailureMessage = err.Error()

	return r
}

// PrintReports prints the reports to the user.
func PrintReports(reports []RolloutReport) {
	logger.Infof("Rollout report")
	for _, report := range reports {
		switch report.Status {
		case RolloutStatusSuccess:
			logger.Infof("\t[%s]: SUCCESS in %s", report.ResourceID, report.Duration.Round(time.Second))
		case RolloutStatusSkipped:
			logger.Infof("\t[%s]: SKIPPED", report.ResourceID)
		case RolloutStatusError:
			logger.Errorf("\t[%s]: FAILURE: %s", report.ResourceID, report.FailureMessage)
		}
	}
}

// Generate writes the report as a YAML file in the report directory.
func Generate(rolloutReport Report) error {
	if rolloutReport.Dir == "" {
		return nil
	}

	if err := os.MkdirAll(rolloutReport.Dir, 0o750); err != nil {
		return fmt.Errorf("cannot create report directory: %w", err)
	}

	for i := range rolloutReport.RolloutReports {
		rolloutReport.RolloutReports[i].StatusString = rolloutReport.RolloutReports[i].Status.String()
	}

	raw, err := yaml.Marshal(rolloutReport)
	if err != nil {
		return fmt.Errorf("cannot serialize report: %w", err)
	}

	reportPath := path.Join(rolloutReport.Dir, fmt.Sprintf("rollout-%s.yaml", rolloutReport.ReleaseID))
	if err := os.WriteFile(reportPath, raw, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("cannot write report file: %w", err)
	}

	logger.Infof("Rollout report written to %s", reportPath)
	return nil
}

// CheckError looks for failures in rollout reports and returns an error if any is found.
func CheckError(reports []RolloutReport) error {
	for _, report := range reports {
		if report.Status == RolloutStatusError {
			return errors.New("one or more rollouts failed, see the report for details")
		}
	}

	return nil
}
