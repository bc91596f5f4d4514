// File: internal/runtime/service.go

// Package runtime owns the generated service's lifecycle: materializing the
// FileSet, installing dependencies, spawning the process, capturing its
// output and answering health probes.
package runtime

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
	"github.com/xkilldash9x/foundry-cli/internal/config"
)

// Service supervises one child process built from a FileSet. All methods are
// safe for concurrent use.
type Service struct {
	cfg    config.RuntimeConfig
	logger *zap.Logger
	buf    *LogBuffer

	mu     sync.Mutex
	cmd    *exec.Cmd
	tailer *Tailer
	status schemas.ServiceStatus
	// procDone closes once cmd.Wait returns; procErr is valid after that.
	procDone chan struct{}
	procErr  error
}

func NewService(cfg config.RuntimeConfig, logger *zap.Logger) *Service {
	size := cfg.LogBufferSize
	if size < 1 {
		size = 2000
	}
	return &Service{
		cfg:    cfg,
		logger: logger.Named("runtime"),
		buf:    NewLogBuffer(size),
	}
}

// Logs exposes the captured output ring.
func (s *Service) Logs() *LogBuffer { return s.buf }

// Status returns a copy of the current service view.
func (s *Service) Status() schemas.ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start materializes the FileSet, installs dependencies, spawns the start
// command and waits for the first healthy probe. A service already running is
// stopped first, so Start doubles as Restart's second half.
func (s *Service) Start(ctx context.Context, fileSet *schemas.FileSet) error {
	if err := s.Stop(); err != nil {
		return err
	}

	if err := s.materialize(fileSet); err != nil {
		return fmt.Errorf("writing fileset: %w", err)
	}
	if err := s.install(ctx); err != nil {
		return fmt.Errorf("installing dependencies: %w", err)
	}

	port := s.cfg.Port
	if port == 0 {
		free, err := freePort()
		if err != nil {
			return fmt.Errorf("allocating port: %w", err)
		}
		port = free
	} else {
		s.freeConfiguredPort(port)
	}

	name, args := splitCommand(s.cfg.StartCommand)
	cmd := exec.Command(name, args...)
	cmd.Dir = s.cfg.OutputDir
	cmd.Env = append(os.Environ(), fmt.Sprintf("PORT=%d", port))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawning %q: %w", s.cfg.StartCommand, err)
	}

	go s.capture("stdout", stdout)
	go s.capture("stderr", stderr)

	procDone := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.procDone = procDone
	s.procErr = nil
	s.status = schemas.ServiceStatus{Running: true, PID: cmd.Process.Pid, Port: port}
	s.mu.Unlock()

	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.procErr = err
		s.mu.Unlock()
		close(procDone)
	}()

	if s.cfg.ServiceLogFile != "" {
		tailer, err := NewTailer(s.cfg.ServiceLogFile, s.buf, s.logger)
		if err != nil {
			s.logger.Warn("Could not follow service log file",
				zap.String("path", s.cfg.ServiceLogFile), zap.Error(err))
		} else {
			s.mu.Lock()
			s.tailer = tailer
			s.mu.Unlock()
		}
	}

	if err := s.awaitHealthy(ctx); err != nil {
		stopErr := s.Stop()
		if stopErr != nil {
			s.logger.Warn("Teardown after failed start also failed", zap.Error(stopErr))
		}
		return err
	}

	s.logger.Info("Service started",
		zap.Int("pid", cmd.Process.Pid),
		zap.Int("port", port),
	)
	return nil
}

// Stop terminates the child process group. Stopping an already stopped
// service is a no-op.
func (s *Service) Stop() error {
	s.mu.Lock()
	cmd := s.cmd
	procDone := s.procDone
	tailer := s.tailer
	s.cmd = nil
	s.procDone = nil
	s.tailer = nil
	s.status.Running = false
	s.status.Healthy = false
	s.mu.Unlock()

	if tailer != nil {
		tailer.Stop()
	}
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	// Negative pid signals the whole process group, catching npm's children.
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)

	select {
	case <-procDone:
	case <-time.After(5 * time.Second):
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-procDone
	}

	s.logger.Info("Service stopped", zap.Int("pid", cmd.Process.Pid))
	return nil
}

// Restart replaces the running service with one built from the given FileSet.
func (s *Service) Restart(ctx context.Context, fileSet *schemas.FileSet) error {
	return s.Start(ctx, fileSet)
}

// CheckHealth probes GET /health once and records the outcome.
func (s *Service) CheckHealth(ctx context.Context) bool {
	s.mu.Lock()
	port := s.status.Port
	running := s.status.Running
	s.mu.Unlock()

	healthy := false
	if running && port > 0 {
		healthy = probeOnce(ctx, fmt.Sprintf("http://127.0.0.1:%d/health", port))
	}

	s.mu.Lock()
	s.status.Healthy = healthy
	s.status.LastCheckedAt = time.Now()
	s.mu.Unlock()
	return healthy
}

func (s *Service) awaitHealthy(ctx context.Context) error {
	timeout := s.cfg.HealthTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	interval := s.cfg.HealthInterval
	if interval <= 0 {
		interval = time.Second
	}

	s.mu.Lock()
	procDone := s.procDone
	s.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-procDone:
			s.mu.Lock()
			err := s.procErr
			s.mu.Unlock()
			return fmt.Errorf("service exited before becoming healthy: %v", err)
		case <-time.After(interval):
		}
		if s.CheckHealth(ctx) {
			return nil
		}
	}
	return fmt.Errorf("service not healthy after %s", timeout)
}

func (s *Service) capture(source string, r interface{ Read([]byte) (int, error) }) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.buf.Append(source, scanner.Text())
	}
}

func (s *Service) materialize(fileSet *schemas.FileSet) error {
	return WriteFileSet(s.cfg.OutputDir, fileSet)
}

// WriteFileSet materializes every file of the set under dir, creating parent
// directories as needed.
func WriteFileSet(dir string, fileSet *schemas.FileSet) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, f := range fileSet.Files {
		dst := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, []byte(f.Content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) install(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.InstallCommand) == "" {
		return nil
	}
	name, args := splitCommand(s.cfg.InstallCommand)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = s.cfg.OutputDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%q failed: %w: %s", s.cfg.InstallCommand, err, lastLines(string(out), 3))
	}
	return nil
}

func splitCommand(command string) (string, []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

// freeConfiguredPort terminates whatever still holds the fixed port so the
// spawned service can bind it. Stale holders are usually a previous service
// generation that escaped its process group.
func (s *Service) freeConfiguredPort(port int) {
	if !portInUse(port) {
		return
	}
	pids := portHolders(port)
	self := os.Getpid()
	for _, pid := range pids {
		if pid == self {
			continue
		}
		s.logger.Warn("Terminating process holding the service port",
			zap.Int("pid", pid), zap.Int("port", port))
		_ = syscall.Kill(pid, syscall.SIGTERM)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !portInUse(port) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	for _, pid := range pids {
		if pid != self {
			_ = syscall.Kill(pid, syscall.SIGKILL)
		}
	}
}

func portInUse(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return true
	}
	l.Close()
	return false
}

// portHolders asks lsof which pids are bound to the TCP port. An empty result
// means lsof is unavailable or the port is held by another user's process.
func portHolders(port int) []int {
	out, err := exec.Command("lsof", "-ti", fmt.Sprintf("tcp:%d", port)).Output()
	if err != nil {
		return nil
	}
	return parsePIDs(string(out))
}

func parsePIDs(out string) []int {
	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		pid, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil && pid > 0 {
			pids = append(pids, pid)
		}
	}
	return pids
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func probeOnce(ctx context.Context, url string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
