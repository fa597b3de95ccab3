package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/grid-infra/dl-acceptor/types"
)

// RunDirectoryPrefix is the prefix of per-cycle log directories
const RunDirectoryPrefix = "testrun-"

// ResultSink consumes run results as the cycle produces them
type ResultSink interface {
	// Consume processes a single run result
	Consume(result *types.RunResult) error
	// Complete is called once after the last result of the cycle
	Complete() error
}

// FileLogger persists driver output for one orchestration cycle. It owns the
// cycle's log directory and fans each result out to its sinks.
//
// Layout under the base directory:
//
//	testrun-<runID>/
//	  all.log      every invocation in sequence
//	  summary.log  the cycle summary
//	  passed/      one file per passing invocation
//	  failed/      one file per failing invocation
type FileLogger struct {
	runID       string
	runDir      string
	passedDir   string
	failedDir   string
	summaryFile string
	allLogsFile string

	mu      sync.Mutex
	writers map[string]*AsyncFile
	sinks   []ResultSink
}

// NewFileLogger creates the directory tree for one cycle under baseDir and
// returns a logger writing into it
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	runDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	l := &FileLogger{
		runID:       runID,
		runDir:      runDir,
		passedDir:   filepath.Join(runDir, "passed"),
		failedDir:   filepath.Join(runDir, "failed"),
		summaryFile: filepath.Join(runDir, "summary.log"),
		allLogsFile: filepath.Join(runDir, "all.log"),
		writers:     make(map[string]*AsyncFile),
	}

	for _, dir := range []string{l.runDir, l.passedDir, l.failedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating log directory %s: %w", dir, err)
		}
	}

	l.sinks = []ResultSink{
		&sequentialLogSink{logger: l},
		&perRunFileSink{logger: l, written: make(map[string]bool)},
	}

	return l, nil
}

// RunID returns the cycle's run ID
func (l *FileLogger) RunID() string {
	return l.runID
}

// RunDir returns the cycle's log directory
func (l *FileLogger) RunDir() string {
	return l.runDir
}

// PassedDir returns the directory holding logs of passing invocations
func (l *FileLogger) PassedDir() string {
	return l.passedDir
}

// FailedDir returns the directory holding logs of failing invocations
func (l *FileLogger) FailedDir() string {
	return l.failedDir
}

// SummaryFile returns the path of the cycle summary file
func (l *FileLogger) SummaryFile() string {
	return l.summaryFile
}

// AllLogsFile returns the path of the combined log file
func (l *FileLogger) AllLogsFile() string {
	return l.allLogsFile
}

// LogRunResult fans a run result out to every sink
func (l *FileLogger) LogRunResult(result *types.RunResult) error {
	for _, sink := range l.sinks {
		if err := sink.Consume(result); err != nil {
			return fmt.Errorf("error in sink: %w", err)
		}
	}
	return nil
}

// LogSummary writes the cycle summary
func (l *FileLogger) LogSummary(summary string) error {
	w, err := l.writer(l.summaryFile)
	if err != nil {
		return err
	}
	return w.Write([]byte(summary))
}

// Complete finalizes all sinks and flushes and closes every open file
func (l *FileLogger) Complete() error {
	for _, sink := range l.sinks {
		if err := sink.Complete(); err != nil {
			return fmt.Errorf("error completing sink: %w", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.writers {
		_ = w.Close() // Ignore errors on close
	}
	l.writers = make(map[string]*AsyncFile)

	return nil
}

// writer returns the shared AsyncFile for a path, creating it on first use
func (l *FileLogger) writer(path string) (*AsyncFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w, ok := l.writers[path]; ok {
		return w, nil
	}
	w, err := NewAsyncFile(path)
	if err != nil {
		return nil, err
	}
	l.writers[path] = w
	return w, nil
}

// AsyncFile writes to a file from a background goroutine so result handling
// never blocks on disk latency
type AsyncFile struct {
	f       *os.File
	pending chan []byte
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
}

// NewAsyncFile creates the file and starts its background writer
func NewAsyncFile(path string) (*AsyncFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}

	af := &AsyncFile{
		f:       f,
		pending: make(chan []byte, 100), // Bounded queue, Write blocks when full
		done:    make(chan struct{}),
	}
	go af.drain()

	return af, nil
}

// drain writes queued data until the pending channel is closed
func (af *AsyncFile) drain() {
	defer close(af.done)
	for data := range af.pending {
		if _, err := af.f.Write(data); err != nil {
			fmt.Fprintf(os.Stderr, "writing %s: %v\n", af.f.Name(), err)
		}
	}
}

// Write queues data for the background writer. The data is copied, the
// caller may reuse its buffer.
func (af *AsyncFile) Write(data []byte) error {
	af.mu.RLock()
	defer af.mu.RUnlock()

	if af.closed {
		return fmt.Errorf("writer for %s is closed", af.f.Name())
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	af.pending <- buf
	return nil
}

// Close waits for queued writes to reach the file, then closes it
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.closed {
		af.closed = true
		close(af.pending)
	}
	af.mu.Unlock()

	<-af.done
	return af.f.Close()
}

// sequentialLogSink appends every invocation to the cycle's all.log in
// execution order
type sequentialLogSink struct {
	logger *FileLogger
}

func (s *sequentialLogSink) Consume(result *types.RunResult) error {
	w, err := s.logger.writer(s.logger.allLogsFile)
	if err != nil {
		return err
	}

	var content strings.Builder

	fmt.Fprintf(&content, "\n")
	fmt.Fprintf(&content, "┌─────────────────────────────────────────────────────────────────────┐\n")
	fmt.Fprintf(&content, "│ RUN: %-65s │\n", truncateString(result.Config.GetName(), 65))
	fmt.Fprintf(&content, "├─────────────────────────────────────────────────────────────────────┤\n")
	fmt.Fprintf(&content, "│ Status:   %-62s │\n", result.Status)
	fmt.Fprintf(&content, "│ Config:   %-62s │\n", truncateString(result.Config.ConfigPath, 62))
	fmt.Fprintf(&content, "│ Exit:     %-62d │\n", result.ExitCode)
	fmt.Fprintf(&content, "│ Duration: %-62s │\n", formatDuration(result.Duration))
	fmt.Fprintf(&content, "│ Time:     %-62s │\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&content, "└─────────────────────────────────────────────────────────────────────┘\n\n")

	if result.Error != nil {
		fmt.Fprintf(&content, "ERROR:\n")
		fmt.Fprintf(&content, "~~~~~~\n")
		fmt.Fprintf(&content, "%s\n\n", result.Error.Error())
	}

	if result.Stdout != "" {
		fmt.Fprintf(&content, "STDOUT:\n")
		fmt.Fprintf(&content, "~~~~~~~\n")
		fmt.Fprintf(&content, "%s\n", indentText(stripANSIEscapeSequences(result.Stdout), "  "))
	}

	if result.Stderr != "" {
		fmt.Fprintf(&content, "STDERR:\n")
		fmt.Fprintf(&content, "~~~~~~~\n")
		fmt.Fprintf(&content, "%s\n", indentText(stripANSIEscapeSequences(result.Stderr), "  "))
	}

	fmt.Fprintf(&content, "\n")

	return w.Write([]byte(content.String()))
}

func (s *sequentialLogSink) Complete() error {
	return nil
}

// perRunFileSink gives each invocation its own file in the passed or failed
// directory, holding the command line and the full captured output
type perRunFileSink struct {
	logger  *FileLogger
	mu      sync.Mutex
	written map[string]bool
}

func (s *perRunFileSink) Consume(result *types.RunResult) error {
	dir := s.logger.passedDir
	if result.Status == types.RunStatusFail || result.Status == types.RunStatusError {
		dir = s.logger.failedDir
	}
	path := filepath.Join(dir, runLogFilename(result)+".log")

	s.mu.Lock()
	if s.written[path] {
		s.mu.Unlock()
		return nil
	}
	s.written[path] = true
	s.mu.Unlock()

	w, err := s.logger.writer(path)
	if err != nil {
		return err
	}

	var content strings.Builder

	fmt.Fprintf(&content, "COMMAND:\n")
	fmt.Fprintf(&content, "========\n\n")
	fmt.Fprintf(&content, "%s\n\n", result.Command)
	fmt.Fprintf(&content, "RESULT:\n")
	fmt.Fprintf(&content, "=======\n\n")
	fmt.Fprintf(&content, "Status:    %s\n", result.Status)
	fmt.Fprintf(&content, "Exit code: %d\n", result.ExitCode)
	fmt.Fprintf(&content, "Duration:  %s\n", formatDuration(result.Duration))
	if result.TimedOut {
		fmt.Fprintf(&content, "Timed out: yes\n")
	}
	if result.Error != nil {
		fmt.Fprintf(&content, "Error:     %s\n", result.Error.Error())
	}

	fmt.Fprintf(&content, "\n%s\n", strings.Repeat("-", 80))
	fmt.Fprintf(&content, "STDOUT:\n")
	fmt.Fprintf(&content, "=======\n\n")
	if result.Stdout != "" {
		fmt.Fprintf(&content, "%s\n", stripANSIEscapeSequences(result.Stdout))
	} else {
		fmt.Fprintf(&content, "No output captured.\n")
	}

	fmt.Fprintf(&content, "\n%s\n", strings.Repeat("-", 80))
	fmt.Fprintf(&content, "STDERR:\n")
	fmt.Fprintf(&content, "=======\n\n")
	if result.Stderr != "" {
		fmt.Fprintf(&content, "%s\n", stripANSIEscapeSequences(result.Stderr))
	} else {
		fmt.Fprintf(&content, "No output captured.\n")
	}

	return w.Write([]byte(content.String()))
}

func (s *perRunFileSink) Complete() error {
	return nil
}

// runLogFilename derives the per-invocation log filename from the run name
func runLogFilename(result *types.RunResult) string {
	return safeFilename(result.Config.GetName())
}

// safeFilename rewrites characters that are unsafe in filenames
func safeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, s)
}

// indentText prefixes every non-empty line with indent
func indentText(text, indent string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = indent + line
		}
	}
	return strings.Join(lines, "\n")
}

// truncateString shortens s to maxLen, marking the cut with an ellipsis
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}
