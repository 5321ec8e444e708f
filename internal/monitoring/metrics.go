package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"civitai-scraper/internal/utils"
	"civitai-scraper/pkg/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const recentRunsKept = 20

type Metrics struct {
	Runs           int                   `json:"runs"`
	TruncatedRuns  int                   `json:"truncated_runs"`
	TotalImages    int                   `json:"total_images"`
	Downloaded     int                   `json:"downloaded"`
	Skipped        int                   `json:"skipped"`
	Failed         int                   `json:"failed"`
	LastRun        time.Time             `json:"last_run"`
	LastRunID      string                `json:"last_run_id"`
	AverageRunTime time.Duration         `json:"average_run_time"`
	FailureRate    float64               `json:"failure_rate"`
	UserMetrics    map[string]UserMetric `json:"user_metrics"`
	RecentRuns     []RunRecord           `json:"recent_runs"`
}

type UserMetric struct {
	Runs           int           `json:"runs"`
	ImagesSeen     int           `json:"images_seen"`
	Downloaded     int           `json:"downloaded"`
	Failed         int           `json:"failed"`
	LastRun        time.Time     `json:"last_run"`
	AverageRunTime time.Duration `json:"average_run_time"`
}

type RunRecord struct {
	ID         string         `json:"id"`
	Username   string         `json:"username"`
	FinishedAt time.Time      `json:"finished_at"`
	Duration   time.Duration  `json:"duration"`
	Stats      types.RunStats `json:"stats"`
	Truncated  bool           `json:"truncated"`
}

// NewRunID returns a fresh identifier for a harvest run.
func NewRunID() string {
	return uuid.NewString()
}

// Monitor keeps cumulative run metrics in a JSON file.
type Monitor struct {
	mu          sync.Mutex
	metrics     *Metrics
	logger      *logrus.Logger
	metricsFile string
}

func NewMonitor(logger *logrus.Logger, metricsFile string) *Monitor {
	monitor := &Monitor{
		metrics: &Metrics{
			UserMetrics: make(map[string]UserMetric),
		},
		logger:      logger,
		metricsFile: metricsFile,
	}

	// Load existing metrics
	monitor.loadMetrics()
	return monitor
}

func (m *Monitor) RecordRun(runID, username string, stats types.RunStats, duration time.Duration, truncated bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	mt := m.metrics

	mt.Runs++
	mt.TotalImages += stats.TotalFetched
	mt.Downloaded += stats.Downloaded
	mt.Skipped += stats.Skipped
	mt.Failed += stats.Failed
	if truncated {
		mt.TruncatedRuns++
	}
	mt.LastRun = now
	mt.LastRunID = runID

	// running mean over all runs
	mt.AverageRunTime += (duration - mt.AverageRunTime) / time.Duration(mt.Runs)

	if attempts := mt.Downloaded + mt.Failed; attempts > 0 {
		mt.FailureRate = float64(mt.Failed) / float64(attempts) * 100
	}

	um := mt.UserMetrics[username]
	um.Runs++
	um.ImagesSeen += stats.TotalFetched
	um.Downloaded += stats.Downloaded
	um.Failed += stats.Failed
	um.LastRun = now
	um.AverageRunTime += (duration - um.AverageRunTime) / time.Duration(um.Runs)
	mt.UserMetrics[username] = um

	mt.RecentRuns = append(mt.RecentRuns, RunRecord{
		ID:         runID,
		Username:   username,
		FinishedAt: now,
		Duration:   duration,
		Stats:      stats,
		Truncated:  truncated,
	})
	if len(mt.RecentRuns) > recentRunsKept {
		mt.RecentRuns = mt.RecentRuns[len(mt.RecentRuns)-recentRunsKept:]
	}

	m.saveMetrics()

	m.logger.WithFields(logrus.Fields{"run_id": runID}).Infof("Recorded run for %s: %d images, %v duration, %d failed",
		username, stats.TotalFetched, duration.Round(time.Millisecond), stats.Failed)
}

// GetMetrics returns a copy of the current metrics.
func (m *Monitor) GetMetrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := *m.metrics
	snapshot.UserMetrics = make(map[string]UserMetric, len(m.metrics.UserMetrics))
	for k, v := range m.metrics.UserMetrics {
		snapshot.UserMetrics[k] = v
	}
	snapshot.RecentRuns = append([]RunRecord(nil), m.metrics.RecentRuns...)
	return snapshot
}

type HealthStatus struct {
	Status         string   `json:"status"`
	LastRun        string   `json:"last_run"`
	TotalRuns      int      `json:"total_runs"`
	FailureRate    string   `json:"failure_rate"`
	AverageRuntime string   `json:"average_runtime"`
	Warnings       []string `json:"warnings,omitempty"`
}

func (m *Monitor) GetHealthStatus() HealthStatus {
	metrics := m.GetMetrics()

	status := HealthStatus{
		Status:         "healthy",
		LastRun:        utils.FormatTimestamp(metrics.LastRun),
		TotalRuns:      metrics.Runs,
		FailureRate:    fmt.Sprintf("%.2f%%", metrics.FailureRate),
		AverageRuntime: metrics.AverageRunTime.Round(time.Millisecond).String(),
	}

	// Check if last run was too long ago
	if !utils.IsWithin(metrics.LastRun, 24*time.Hour) {
		status.Warnings = append(status.Warnings, "No harvest runs in the last 24 hours")
	}

	if metrics.FailureRate > 10 {
		status.Warnings = append(status.Warnings, "High download failure rate detected")
	}

	if n := len(metrics.RecentRuns); n > 0 && metrics.RecentRuns[n-1].Truncated {
		status.Warnings = append(status.Warnings, "Last run stopped before the final page")
	}

	if len(status.Warnings) > 0 {
		status.Status = "warning"
	}
	return status
}

func (m *Monitor) GenerateReport() string {
	metrics := m.GetMetrics()

	var b strings.Builder
	fmt.Fprintf(&b, `
Civitai Scraper Monitoring Report
=================================
Generated: %s

Overall Statistics:
- Total Runs: %d (%d truncated)
- Images Seen: %d
- Downloaded: %d
- Skipped: %d
- Failed: %d
- Failure Rate: %.2f%%
- Average Run Time: %s
- Last Run: %s (%s)

User Performance:
`,
		time.Now().Format("2006-01-02 15:04:05"),
		metrics.Runs, metrics.TruncatedRuns,
		metrics.TotalImages,
		metrics.Downloaded,
		metrics.Skipped,
		metrics.Failed,
		metrics.FailureRate,
		metrics.AverageRunTime.Round(time.Millisecond),
		utils.FormatTimestamp(metrics.LastRun), metrics.LastRunID,
	)

	users := make([]string, 0, len(metrics.UserMetrics))
	for username := range metrics.UserMetrics {
		users = append(users, username)
	}
	sort.Strings(users)

	for _, username := range users {
		metric := metrics.UserMetrics[username]
		fmt.Fprintf(&b, `
- User %s:
  Runs: %d
  Images Seen: %d
  Downloaded: %d
  Failed: %d
  Last Run: %s
  Average Runtime: %s
`,
			username,
			metric.Runs,
			metric.ImagesSeen,
			metric.Downloaded,
			metric.Failed,
			utils.FormatTimestamp(metric.LastRun),
			metric.AverageRunTime.Round(time.Millisecond),
		)
	}

	return b.String()
}

func (m *Monitor) loadMetrics() {
	data, err := os.ReadFile(m.metricsFile)
	if errors.Is(err, fs.ErrNotExist) {
		m.logger.Info("No existing metrics file found, starting fresh")
		return
	}
	if err != nil {
		m.logger.Warnf("Failed to read metrics file: %v", err)
		return
	}

	if err := json.Unmarshal(data, m.metrics); err != nil {
		m.logger.Warnf("Failed to parse metrics file: %v", err)
		return
	}
	if m.metrics.UserMetrics == nil {
		m.metrics.UserMetrics = make(map[string]UserMetric)
	}

	m.logger.Debug("Loaded existing metrics from file")
}

func (m *Monitor) saveMetrics() {
	data, err := json.MarshalIndent(m.metrics, "", "  ")
	if err != nil {
		m.logger.Errorf("Failed to marshal metrics: %v", err)
		return
	}

	if dir := filepath.Dir(m.metricsFile); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			m.logger.Errorf("Failed to create metrics directory: %v", err)
			return
		}
	}
	if _, err := utils.WriteFileAtomic(m.metricsFile, bytes.NewReader(data)); err != nil {
		m.logger.Errorf("Failed to save metrics: %v", err)
	}
}

// AlertManager handles alerting based on metrics
type AlertManager struct {
	monitor *Monitor
	logger  *logrus.Logger
}

func NewAlertManager(monitor *Monitor, logger *logrus.Logger) *AlertManager {
	return &AlertManager{
		monitor: monitor,
		logger:  logger,
	}
}

func (am *AlertManager) CheckAlerts() []string {
	var alerts []string
	metrics := am.monitor.GetMetrics()

	if metrics.Runs == 0 {
		return []string{"ALERT: Scraper has never run"}
	}

	if time.Since(metrics.LastRun) > 25*time.Hour {
		alerts = append(alerts, "ALERT: Scraper hasn't run in over 24 hours")
	}

	if metrics.FailureRate > 15 {
		alerts = append(alerts, fmt.Sprintf("ALERT: High download failure rate: %.2f%%", metrics.FailureRate))
	}

	if metrics.TotalImages == 0 {
		alerts = append(alerts, "ALERT: No images have been listed")
	}

	// three truncated runs in a row usually means a bad token or an API change
	if n := len(metrics.RecentRuns); n >= 3 {
		streak := true
		for _, run := range metrics.RecentRuns[n-3:] {
			streak = streak && run.Truncated
		}
		if streak {
			alerts = append(alerts, "ALERT: Last 3 runs stopped before the final page")
		}
	}

	return alerts
}

func (am *AlertManager) SendAlerts(alerts []string) {
	for _, alert := range alerts {
		am.logger.Warn(alert)
	}
}
