package sink

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File names inside a run folder.
const (
	RequestsFile = "llm_requests.csv"
	ProbesFile   = "network_latency.csv"
	ErrorsFile   = "errors.csv"
)

// table is one append-only CSV file with a header row.
type table struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

func openTable(path string, header []string) (*table, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	t := &table{file: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := t.append(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing header to %s: %w", path, err)
		}
	}
	return t, nil
}

func (t *table) append(row []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.w.Write(row); err != nil {
		return err
	}
	t.w.Flush()
	return t.w.Error()
}

func (t *table) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.w.Flush()
	return errors.Join(t.w.Error(), t.file.Close())
}

// CSV appends records to the three CSV files of a run folder.
// Empty files get a header row on open.
type CSV struct {
	requests *table
	probes   *table
	errors   *table
}

// OpenCSV creates (or appends to) the record files inside dir.
func OpenCSV(dir string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	requests, err := openTable(filepath.Join(dir, RequestsFile), RequestSchema.Header())
	if err != nil {
		return nil, err
	}
	probes, err := openTable(filepath.Join(dir, ProbesFile), ProbeSchema.Header())
	if err != nil {
		requests.close()
		return nil, err
	}
	errs, err := openTable(filepath.Join(dir, ErrorsFile), ErrorSchema.Header())
	if err != nil {
		requests.close()
		probes.close()
		return nil, err
	}
	return &CSV{requests: requests, probes: probes, errors: errs}, nil
}

func (c *CSV) WriteRequest(r RequestRecord) error {
	if err := c.requests.append(RequestSchema.Row(r)); err != nil {
		return fmt.Errorf("writing request record: %w", err)
	}
	return nil
}

func (c *CSV) WriteProbe(r ProbeRecord) error {
	if err := c.probes.append(ProbeSchema.Row(r)); err != nil {
		return fmt.Errorf("writing probe record: %w", err)
	}
	return nil
}

func (c *CSV) WriteError(r ErrorRecord) error {
	if err := c.errors.append(ErrorSchema.Row(r)); err != nil {
		return fmt.Errorf("writing error record: %w", err)
	}
	return nil
}

// Close flushes and closes all files.
func (c *CSV) Close() error {
	return errors.Join(c.requests.close(), c.probes.close(), c.errors.close())
}
