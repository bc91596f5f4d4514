// File: internal/monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
	"github.com/xkilldash9x/foundry-cli/internal/config"
	"github.com/xkilldash9x/foundry-cli/internal/runtime"
)

// Supervised is the slice of the service runtime the monitor drives.
type Supervised interface {
	CheckHealth(ctx context.Context) bool
	Status() schemas.ServiceStatus
	Logs() *runtime.LogBuffer
	Restart(ctx context.Context, fileSet *schemas.FileSet) error
}

// Remediator produces a corrected FileSet for a failing service. The monitor
// does not care how; in practice this is the full iteration loop.
type Remediator interface {
	Remediate(ctx context.Context, trigger schemas.TriggerKind, logExcerpt string) (*schemas.FileSet, error)
}

// Monitor runs the two supervision loops: a fast health probe and a slower
// log scan. Both can demand remediation; a TryLock keeps the cycles mutually
// exclusive so the service is never rebuilt by two loops at once.
type Monitor struct {
	cfg        config.MonitorConfig
	service    Supervised
	remediator Remediator
	history    *History
	outputDir  string
	logger     *zap.Logger

	remMu sync.Mutex

	stateMu sync.Mutex
	// lastRemediation gates the log scan so one burst of errors triggers one
	// cycle instead of one per tick.
	lastRemediation time.Time
	fileSet         *schemas.FileSet
}

// New builds a monitor. outputDir is where the supervised FileSet lives on
// disk; it only feeds the audit summary.
func New(cfg config.MonitorConfig, service Supervised, remediator Remediator, history *History, fileSet *schemas.FileSet, outputDir string, logger *zap.Logger) *Monitor {
	return &Monitor{
		cfg:        cfg,
		service:    service,
		remediator: remediator,
		history:    history,
		fileSet:    fileSet,
		outputDir:  outputDir,
		logger:     logger.Named("monitor"),
	}
}

// Run blocks until the context ends, driving both loops. Loop errors other
// than context cancellation are returned.
func (m *Monitor) Run(ctx context.Context) error {
	healthInterval := m.cfg.HealthInterval
	if healthInterval <= 0 {
		healthInterval = 5 * time.Second
	}
	logInterval := m.cfg.LogInterval
	if logInterval <= 0 {
		logInterval = 10 * time.Second
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.loop(ctx, healthInterval, m.healthTick) })
	g.Go(func() error { return m.loop(ctx, logInterval, m.logTick) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, tick func(ctx context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// healthTick probes the service and remediates when the probe fails.
func (m *Monitor) healthTick(ctx context.Context) {
	if m.service.CheckHealth(ctx) {
		return
	}
	status := m.service.Status()
	m.logger.Warn("Health probe failed",
		zap.Bool("running", status.Running),
		zap.Int("port", status.Port),
	)
	if !m.cfg.AutoRestart {
		return
	}
	m.remediate(ctx, schemas.TriggerError)
}

// logTick scans only the most recent scan window of output for error-level
// lines inside the recent-error window and remediates when any are found.
// Bounding the scan to the tail keeps one old burst from re-triggering forever.
func (m *Monitor) logTick(ctx context.Context) {
	cutoff := time.Now().Add(-m.recentWindow())
	if m.lastRemediationTime().After(cutoff) {
		cutoff = m.lastRemediationTime()
	}

	count := 0
	for _, e := range m.service.Logs().Tail(m.scanLines()) {
		if e.Level == "error" && e.Time.After(cutoff) {
			count++
		}
	}
	if count == 0 {
		return
	}
	m.logger.Warn("Error-level log lines detected", zap.Int("count", count))
	m.remediate(ctx, schemas.TriggerLogAnalysis)
}

// remediate runs one evolution cycle: regenerate, restart, record. TryLock
// makes cycles mutually exclusive; the loser of the race simply skips, its
// trigger condition will re-fire on the next tick if the winner didn't fix it.
func (m *Monitor) remediate(ctx context.Context, trigger schemas.TriggerKind) {
	if !m.remMu.TryLock() {
		m.logger.Debug("Remediation already in progress; skipping", zap.String("trigger", string(trigger)))
		return
	}
	defer m.remMu.Unlock()

	// Regeneration needs error output to correct against. A service that is
	// unhealthy without any recent error lines gets a plain restart instead,
	// and the restart does not consume an evolution cycle.
	if len(m.service.Logs().ErrorsSince(time.Now().Add(-m.recentWindow()))) == 0 {
		m.logger.Info("No recent error output; restarting without regeneration",
			zap.String("trigger", string(trigger)),
		)
		if err := m.service.Restart(ctx, m.currentFileSet()); err != nil {
			m.logger.Error("Plain restart failed", zap.Error(err))
		}
		return
	}

	if m.history.Count() >= m.maxCycles() {
		m.logger.Error("Evolution cycle ceiling reached; manual intervention required",
			zap.Int("cycles", m.history.Count()),
			zap.Int("ceiling", m.maxCycles()),
		)
		return
	}

	excerpt := m.logExcerpt()
	cycle := schemas.EvolutionCycle{Trigger: trigger, LogExcerpt: excerpt}

	newSet, err := m.remediator.Remediate(ctx, trigger, joinExcerpt(excerpt))
	if err != nil {
		m.logger.Error("Remediation failed", zap.Error(err))
		cycle.Result = schemas.CycleFailure
		m.record(cycle)
		return
	}

	cycle.ChangedFiles = diffFileSets(m.currentFileSet(), newSet)

	if err := m.service.Restart(ctx, newSet); err != nil {
		m.logger.Error("Restart with remediated FileSet failed", zap.Error(err))
		cycle.Result = schemas.CycleFailure
		m.record(cycle)
		return
	}

	m.stateMu.Lock()
	m.fileSet = newSet
	m.lastRemediation = time.Now()
	m.stateMu.Unlock()

	cycle.Result = schemas.CycleSuccess
	m.record(cycle)
	m.logger.Info("Remediation cycle succeeded",
		zap.String("trigger", string(trigger)),
		zap.Int("changed_files", len(cycle.ChangedFiles)),
	)
}

func (m *Monitor) record(cycle schemas.EvolutionCycle) {
	if _, err := m.history.Append(cycle); err != nil {
		m.logger.Error("Could not persist evolution history", zap.Error(err))
	}
	if err := WriteAudit(m.cfg.AuditFile, m.service.Status(), m.outputDir, m.history.Cycles()); err != nil {
		m.logger.Error("Could not write audit artifact", zap.Error(err))
	}
}

func (m *Monitor) logExcerpt() []string {
	entries := m.service.Logs().Tail(m.scanLines())
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, fmt.Sprintf("[%s] %s", e.Level, e.Line))
	}
	return out
}

func (m *Monitor) maxCycles() int {
	if m.cfg.MaxEvolutionCycles <= 0 {
		return 5
	}
	return m.cfg.MaxEvolutionCycles
}

func (m *Monitor) scanLines() int {
	if m.cfg.LogScanLines <= 0 {
		return 50
	}
	return m.cfg.LogScanLines
}

func (m *Monitor) recentWindow() time.Duration {
	if m.cfg.RecentErrorWindow <= 0 {
		return 5 * time.Minute
	}
	return m.cfg.RecentErrorWindow
}

func (m *Monitor) lastRemediationTime() time.Time {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.lastRemediation
}

func (m *Monitor) currentFileSet() *schemas.FileSet {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.fileSet
}

func joinExcerpt(lines []string) string {
	out := ""
	for i, line := range lines {
		if i > 0 {
			out += "\n"
		}
		out += line
	}
	return out
}

// diffFileSets records what changed between two FileSet versions.
func diffFileSets(old, new *schemas.FileSet) []schemas.ChangedFile {
	var out []schemas.ChangedFile
	oldFiles := make(map[string]string)
	if old != nil {
		for _, f := range old.Files {
			oldFiles[f.Path] = f.Content
		}
	}
	if new == nil {
		return out
	}
	for _, f := range new.Files {
		prev, existed := oldFiles[f.Path]
		switch {
		case !existed:
			out = append(out, schemas.ChangedFile{Path: f.Path, Action: "created", Reason: "remediation"})
		case prev != f.Content:
			out = append(out, schemas.ChangedFile{Path: f.Path, Action: "modified", Reason: "remediation"})
		}
	}
	return out
}
