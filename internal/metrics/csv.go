package metrics

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	timeHeader       = "time (s)"
	nearestHopSuffix = " (nearest hop)"
)

// Logger appends one CSV row per probe round. A row is written only once
// every target has a value for it, so columns stay aligned even though
// targets probe independently. Row times are synthetic: row index times the
// nominal probe period.
//
// Close finalizes the file by prepending a summary block. Close must be
// called exactly once on every exit path; further calls return the first
// result.
type Logger struct {
	path    string
	file    *os.File
	writer  *csv.Writer
	period  time.Duration
	columns [][]int64
	rows    int

	closed   bool
	closeErr error
}

// NextPath returns the first unused pingN.csv in dir, N starting at 1.
func NextPath(dir string) (string, error) {
	for i := 1; ; i++ {
		path := filepath.Join(dir, fmt.Sprintf("ping%d.csv", i))
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// Create opens a new log at the first unused pingN.csv in dir.
func Create(dir string, labels []string, period time.Duration) (*Logger, error) {
	for {
		path, err := NextPath(dir)
		if err != nil {
			return nil, err
		}
		l, err := New(path, labels, period)
		if errors.Is(err, os.ErrExist) {
			// Lost a race with another process; try the next name.
			continue
		}
		return l, err
	}
}

// New creates the log at path, which must not exist, and writes the header.
func New(path string, labels []string, period time.Duration) (*Logger, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("log needs at least one column")
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}

	l := &Logger{
		path:    path,
		file:    file,
		writer:  csv.NewWriter(file),
		period:  period,
		columns: make([][]int64, len(labels)),
	}

	header := make([]string, 0, len(labels)+1)
	header = append(header, timeHeader, labels[0]+nearestHopSuffix)
	header = append(header, labels[1:]...)
	if err := l.writer.Write(header); err != nil {
		_ = file.Close()
		return nil, err
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		_ = file.Close()
		return nil, err
	}
	return l, nil
}

// Path returns the log file path.
func (l *Logger) Path() string {
	return l.path
}

// Rows returns the number of data rows written so far.
func (l *Logger) Rows() int {
	return l.rows
}

// Log buffers one latency for target idx and writes every row that became
// complete.
func (l *Logger) Log(idx int, latency time.Duration) error {
	if l.closed {
		return fmt.Errorf("log %s is closed", l.path)
	}
	if idx < 0 || idx >= len(l.columns) {
		return fmt.Errorf("target %d out of range (%d columns)", idx, len(l.columns))
	}
	l.columns[idx] = append(l.columns[idx], latency.Milliseconds())

	wrote := false
	for l.rowComplete() {
		if err := l.writer.Write(l.record(l.rows)); err != nil {
			return err
		}
		l.rows++
		wrote = true
	}
	if !wrote {
		return nil
	}
	l.writer.Flush()
	return l.writer.Error()
}

func (l *Logger) rowComplete() bool {
	for _, col := range l.columns {
		if len(col) <= l.rows {
			return false
		}
	}
	return true
}

func (l *Logger) record(row int) []string {
	rec := make([]string, 0, len(l.columns)+1)
	rec = append(rec, RowTime(row, l.period))
	for _, col := range l.columns {
		rec = append(rec, strconv.FormatInt(col[row], 10))
	}
	return rec
}

// RowTime formats the synthetic timestamp of a row in seconds.
func RowTime(row int, period time.Duration) string {
	return strconv.FormatFloat((time.Duration(row) * period).Seconds(), 'f', 1, 64)
}

// Close finalizes the log. The data file is closed first; the summary and a
// verbatim copy of the data are then written to a temporary file that
// replaces the log only once it is complete, so a crash leaves either the
// original data or the finished file.
func (l *Logger) Close() error {
	if l.closed {
		return l.closeErr
	}
	l.closed = true
	l.closeErr = l.finalize()
	return l.closeErr
}

func (l *Logger) finalize() error {
	l.writer.Flush()
	flushErr := l.writer.Error()
	syncErr := l.file.Sync()
	if err := l.file.Close(); err != nil {
		return err
	}
	if flushErr != nil {
		return flushErr
	}
	if syncErr != nil {
		return syncErr
	}

	summary, err := Summarize(l.columns)
	if errors.Is(err, ErrNoData) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("finalize %s: %w", l.path, err)
	}
	return prependSummary(l.path, summary)
}

func prependSummary(path string, summary []ColumnSummary) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := WriteSummary(tmp, summary); err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	_, err = io.Copy(tmp, src)
	_ = src.Close()
	if err != nil {
		return err
	}

	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// WriteSummary writes the summary block: averages, two spacer rows, then the
// 95th and 99th percentiles. Each row has a blank leading cell so values line
// up under their target columns.
func WriteSummary(w io.Writer, summary []ColumnSummary) error {
	writer := csv.NewWriter(w)
	width := len(summary) + 2

	row := func(label string, value func(ColumnSummary) int64) []string {
		rec := make([]string, 0, width)
		rec = append(rec, "")
		for _, s := range summary {
			rec = append(rec, strconv.FormatInt(value(s), 10))
		}
		return append(rec, label)
	}
	spacer := make([]string, width)

	records := [][]string{
		row("Average", func(s ColumnSummary) int64 { return s.Avg }),
		spacer,
		spacer,
		row("95th percentile", func(s ColumnSummary) int64 { return s.P95 }),
		row("99th percentile", func(s ColumnSummary) int64 { return s.P99 }),
	}
	if err := writer.WriteAll(records); err != nil {
		return err
	}
	return writer.Error()
}
