// File: internal/pipeline/runtime.go
package pipeline

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
)

const (
	containerPort     = 3000
	healthPollTries   = 20
	healthPollBackoff = 500 * time.Millisecond
)

// runtimeStage builds the FileSet into a container image, starts it on an
// ephemeral host port, probes /health and then runs a scripted CRUD pass per
// declared API resource, diffing actual against expected status codes. The
// stage degrades to a pass-with-warning when no container tool or no
// Dockerfile is available, so offline runs are never blocked on docker.
type runtimeStage struct {
	tool string
}

func (s *runtimeStage) Name() schemas.StageName { return schemas.StageRuntime }
func (s *runtimeStage) Critical() bool          { return false }

func (s *runtimeStage) Check(ctx context.Context, in Input) Outcome {
	var out Outcome

	tool := s.tool
	if tool == "" {
		tool = "docker"
	}
	if _, err := exec.LookPath(tool); err != nil {
		out.Warnings = append(out.Warnings, schemas.StageError{
			Message: fmt.Sprintf("container tool %q not available; runtime checks skipped", tool),
			Code:    schemas.CodeRuntimeCheck,
		})
		return out
	}
	if _, ok := in.FileSet.Resolve("Dockerfile"); !ok {
		out.Warnings = append(out.Warnings, schemas.StageError{
			Message: "FileSet has no Dockerfile; runtime checks skipped",
			Code:    schemas.CodeRuntimeCheck,
		})
		return out
	}

	buildDir, err := materialize(in.FileSet, in.WorkDir)
	if err != nil {
		out.Errors = append(out.Errors, schemas.StageError{
			Message: fmt.Sprintf("could not materialize FileSet: %v", err),
			Code:    schemas.CodeRuntimeCheck,
		})
		return out
	}
	defer os.RemoveAll(buildDir)

	tag := "foundry-check-" + uuid.NewString()[:8]
	if buildOut, err := runCmd(ctx, tool, "build", "-t", tag, buildDir); err != nil {
		out.Errors = append(out.Errors, schemas.StageError{
			Message: fmt.Sprintf("image build failed: %v: %s", err, tail(buildOut, 3)),
			Code:    schemas.CodeRuntimeCheck,
		})
		return out
	}
	defer runCmd(context.Background(), tool, "rmi", "-f", tag) //nolint:errcheck

	port, err := freePort()
	if err != nil {
		out.Errors = append(out.Errors, schemas.StageError{
			Message: fmt.Sprintf("no free host port: %v", err),
			Code:    schemas.CodeRuntimeCheck,
		})
		return out
	}

	containerID, err := runCmd(ctx, tool, "run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:%d", port, containerPort),
		"-e", fmt.Sprintf("PORT=%d", containerPort),
		tag)
	if err != nil {
		out.Errors = append(out.Errors, schemas.StageError{
			Message: fmt.Sprintf("container start failed: %v", err),
			Code:    schemas.CodeRuntimeCheck,
		})
		return out
	}
	containerID = strings.TrimSpace(containerID)
	defer runCmd(context.Background(), tool, "rm", "-f", containerID) //nolint:errcheck

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	if err := pollHealth(ctx, base+"/health"); err != nil {
		logs, _ := runCmd(context.Background(), tool, "logs", "--tail", "20", containerID)
		out.Errors = append(out.Errors, schemas.StageError{
			Message: fmt.Sprintf("health check never passed: %v: %s", err, tail(logs, 3)),
			Code:    schemas.CodeRuntimeCheck,
		})
		return out
	}

	probes := 1
	for _, res := range in.Contract.Definition.Resources {
		path := res.BasePath
		if path == "" {
			path = "/" + strings.ToLower(res.Entity) + "s"
		}
		entity, _ := in.Contract.Definition.Entity(res.Entity)
		calls, errs := crudProbe(ctx, base+path, entity)
		probes += calls
		out.Errors = append(out.Errors, errs...)
	}

	out.Metrics = map[string]float64{"probes": float64(probes)}
	return out
}

// crudProbe drives one scripted create-read-update-delete pass against a
// resource and diffs each actual status against the accepted set. The id for
// the single-item calls comes from the create response, defaulting to "1" when
// the service does not echo one.
func crudProbe(ctx context.Context, base string, entity schemas.Entity) (int, []schemas.StageError) {
	client := &http.Client{Timeout: 5 * time.Second}
	body := sampleBody(entity)
	calls := 0
	var errs []schemas.StageError

	call := func(method, url, payload string, accepted ...int) string {
		calls++
		req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(payload))
		if err != nil {
			errs = append(errs, schemas.StageError{
				Message: fmt.Sprintf("%s %s: %v", method, url, err),
				Code:    schemas.CodeRuntimeCheck,
			})
			return ""
		}
		if payload != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := client.Do(req)
		if err != nil {
			errs = append(errs, schemas.StageError{
				Message: fmt.Sprintf("%s %s: %v", method, url, err),
				Code:    schemas.CodeRuntimeCheck,
			})
			return ""
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		for _, want := range accepted {
			if resp.StatusCode == want {
				return string(data)
			}
		}
		errs = append(errs, schemas.StageError{
			Message: fmt.Sprintf("%s %s: expected status in %v, got %d", method, url, accepted, resp.StatusCode),
			Code:    schemas.CodeRuntimeCheck,
		})
		return string(data)
	}

	created := call(http.MethodPost, base, body, http.StatusOK, http.StatusCreated)
	id := extractID(created)

	call(http.MethodGet, base, "", http.StatusOK)
	call(http.MethodGet, base+"/"+id, "", http.StatusOK)
	call(http.MethodPut, base+"/"+id, body, http.StatusOK, http.StatusNoContent)
	call(http.MethodDelete, base+"/"+id, "", http.StatusOK, http.StatusAccepted, http.StatusNoContent)
	call(http.MethodGet, base+"/"+id, "", http.StatusNotFound, http.StatusGone)

	return calls, errs
}

// sampleBody synthesizes a JSON payload satisfying the entity's fields, with
// format-aware values so generated input validation accepts it.
func sampleBody(entity schemas.Entity) string {
	doc := make(map[string]interface{}, len(entity.Fields))
	for _, f := range entity.Fields {
		if f.Name == "id" {
			continue
		}
		switch {
		case f.Format == "email":
			doc[f.Name] = "user@example.com"
		case f.Format == "url":
			doc[f.Name] = "https://example.com"
		case f.Format == "uuid":
			doc[f.Name] = uuid.NewString()
		case f.Type == "number" || f.Type == "integer" || f.Type == "float":
			doc[f.Name] = 1
		case f.Type == "boolean":
			doc[f.Name] = true
		default:
			doc[f.Name] = "sample"
		}
	}
	if len(doc) == 0 {
		doc["name"] = "sample"
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return `{"name":"sample"}`
	}
	return string(data)
}

// extractID pulls the created record's id out of the POST response.
func extractID(body string) string {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return "1"
	}
	for _, key := range []string{"id", "_id"} {
		switch v := doc[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return "1"
}

// materialize writes the FileSet under a fresh directory inside workDir (or
// the system temp dir) and returns its path.
func materialize(fs *schemas.FileSet, workDir string) (string, error) {
	if workDir == "" {
		workDir = os.TempDir()
	}
	dir, err := os.MkdirTemp(workDir, "foundry-build-")
	if err != nil {
		return "", err
	}
	for _, f := range fs.Files {
		dst := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
		if err := os.WriteFile(dst, []byte(f.Content), 0o644); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
	}
	return dir, nil
}

func runCmd(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	outBytes, err := cmd.CombinedOutput()
	return string(outBytes), err
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func pollHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	var lastErr error
	for i := 0; i < healthPollTries; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(healthPollBackoff):
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return nil
		}
		lastErr = fmt.Errorf("status %d", resp.StatusCode)
	}
	return fmt.Errorf("after %d attempts: %w", healthPollTries, lastErr)
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
