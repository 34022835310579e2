package data

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

const csvDirPermissions = 0750

// CSVLogger appends every routed record to a per-session CSV file.
//
// One row per record: wall-clock datetime, nanosecond unix timestamp,
// device ID, sequence number, and the payload as JSON. The file is
// flushed on every write so a crash loses at most the row in flight.
type CSVLogger struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	path   string
	closed bool
}

// NewCSVLogger opens <dir>/<sessionID>_records.csv and writes the header.
func NewCSVLogger(dir, sessionID string) (*CSVLogger, error) {
	if err := os.MkdirAll(dir, csvDirPermissions); err != nil {
		return nil, fmt.Errorf("creating csv log directory: %w", err)
	}

	path := filepath.Join(dir, sessionID+"_records.csv")
	file, err := os.Create(path) // #nosec G304 -- path built from config dir and run UUID
	if err != nil {
		return nil, fmt.Errorf("creating csv log: %w", err)
	}

	writer := csv.NewWriter(file)
	header := []string{"datetime", "timestamp_ns", "device_id", "device_type", "seq", "payload"}
	if err := writer.Write(header); err != nil {
		file.Close() //nolint:errcheck // Error path cleanup
		return nil, fmt.Errorf("writing csv header: %w", err)
	}
	writer.Flush()

	return &CSVLogger{
		file:   file,
		writer: writer,
		path:   path,
	}, nil
}

// Path returns the log file location.
func (l *CSVLogger) Path() string {
	return l.path
}

// Name identifies this consumer in logs.
func (l *CSVLogger) Name() string {
	return "csv-log"
}

// Consume appends one record row.
func (l *CSVLogger) Consume(rec Record) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		payload = []byte(fmt.Sprintf("%q", fmt.Sprint(rec.Payload)))
	}

	row := []string{
		rec.Timestamp.Format(time.RFC3339Nano),
		strconv.FormatInt(rec.Timestamp.UnixNano(), 10),
		rec.DeviceID,
		rec.DeviceType,
		strconv.FormatUint(rec.Seq, 10),
		string(payload),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("csv log %s already closed", l.path)
	}
	if err := l.writer.Write(row); err != nil {
		return fmt.Errorf("writing csv row: %w", err)
	}
	l.writer.Flush()
	return l.writer.Error()
}

// Close flushes and closes the log file. Idempotent.
func (l *CSVLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		l.file.Close() //nolint:errcheck // Flush error takes precedence
		return fmt.Errorf("flushing csv log: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing csv log: %w", err)
	}
	return nil
}
