// File: internal/runtime/tailer.go
package runtime

import (
	"github.com/hpcloud/tail"
	"go.uber.org/zap"
)

// Tailer follows a log file the generated service writes itself and merges
// its lines into the shared LogBuffer, so health analysis sees one stream
// regardless of where the service logs.
type Tailer struct {
	t      *tail.Tail
	logger *zap.Logger
	done   chan struct{}
}

func NewTailer(path string, buf *LogBuffer, logger *zap.Logger) (*Tailer, error) {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, err
	}

	tl := &Tailer{t: t, logger: logger.Named("tailer"), done: make(chan struct{})}
	go func() {
		defer close(tl.done)
		for line := range t.Lines {
			if line.Err != nil {
				tl.logger.Warn("Tail error", zap.Error(line.Err))
				continue
			}
			buf.Append("file", line.Text)
		}
	}()
	return tl, nil
}

// Stop ends the follow and waits for the pump goroutine to drain.
func (tl *Tailer) Stop() {
	_ = tl.t.Stop()
	tl.t.Cleanup()
	<-tl.done
}
