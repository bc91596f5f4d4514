// File: internal/monitor/audit.go
package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xkilldash9x/foundry-cli/api/schemas"
)

const auditExcerptLines = 10

// WriteAudit renders the evolution history as a markdown document: a summary
// (cycle count, last update, port, output directory) followed by a table and
// one section per cycle. The file is rewritten whole on every call; it is an
// artifact, not a log.
func WriteAudit(path string, status schemas.ServiceStatus, outputDir string, cycles []schemas.EvolutionCycle) error {
	if path == "" {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("# Evolution Audit\n\n")
	fmt.Fprintf(&sb, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))

	sb.WriteString("## Service\n\n")
	fmt.Fprintf(&sb, "- Running: %t\n", status.Running)
	fmt.Fprintf(&sb, "- Healthy: %t\n", status.Healthy)
	if status.PID > 0 {
		fmt.Fprintf(&sb, "- PID: %d\n", status.PID)
	}
	if status.Port > 0 {
		fmt.Fprintf(&sb, "- Port: %d\n", status.Port)
	}
	if outputDir != "" {
		fmt.Fprintf(&sb, "- Output directory: %s\n", outputDir)
	}
	fmt.Fprintf(&sb, "- Cycles: %d\n", len(cycles))
	if len(cycles) > 0 {
		fmt.Fprintf(&sb, "- Last update: %s\n",
			cycles[len(cycles)-1].Timestamp.UTC().Format(time.RFC3339))
	}
	sb.WriteString("\n")

	sb.WriteString("## Cycles\n\n")
	if len(cycles) == 0 {
		sb.WriteString("No evolution cycles have run.\n")
	} else {
		sb.WriteString("| # | Trigger | Result | Files changed | When |\n")
		sb.WriteString("|---|---------|--------|---------------|------|\n")
		for _, c := range cycles {
			fmt.Fprintf(&sb, "| %d | %s | %s | %d | %s |\n",
				c.Cycle, c.Trigger, c.Result, len(c.ChangedFiles),
				c.Timestamp.UTC().Format(time.RFC3339))
		}
		sb.WriteString("\n")

		for _, c := range cycles {
			fmt.Fprintf(&sb, "### Cycle %d (%s)\n\n", c.Cycle, c.ID)
			fmt.Fprintf(&sb, "Trigger: %s  \nResult: %s\n\n", c.Trigger, c.Result)

			if len(c.ChangedFiles) > 0 {
				sb.WriteString("Changed files:\n\n")
				for _, f := range c.ChangedFiles {
					fmt.Fprintf(&sb, "- `%s` (%s)", f.Path, f.Action)
					if f.Reason != "" {
						fmt.Fprintf(&sb, " -- %s", f.Reason)
					}
					sb.WriteString("\n")
				}
				sb.WriteString("\n")
			}

			if len(c.LogExcerpt) > 0 {
				sb.WriteString("Log excerpt:\n\n```\n")
				excerpt := c.LogExcerpt
				if len(excerpt) > auditExcerptLines {
					excerpt = excerpt[:auditExcerptLines]
				}
				for _, line := range excerpt {
					sb.WriteString(line)
					sb.WriteString("\n")
				}
				sb.WriteString("```\n\n")
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}
