package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
)

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = errors.New("writer closed")

// OneMinuteRow is a one-minute tier row in Parquet format.
type OneMinuteRow struct {
	Timestamp        int64   `parquet:"timestamp"`
	State            string  `parquet:"state,zstd"`
	Percentage       float32 `parquet:"percentage"`
	EnergyRate       float32 `parquet:"energy_rate"`
	Voltage          float32 `parquet:"voltage"`
	CPULoad          float32 `parquet:"cpu_load"`
	ScreenBrightness float32 `parquet:"screen_brightness"`
	StateOfHealth    float32 `parquet:"state_of_health"`
}

// HistoryRow is a state interval in Parquet format. Prev and EndAt are
// written as null when unset.
type HistoryRow struct {
	Timestamp        int64   `parquet:"timestamp"`
	State            string  `parquet:"state,zstd"`
	Prev             string  `parquet:"prev,optional,zstd"`
	EndAt            int64   `parquet:"end_at,optional"`
	Capacity         float32 `parquet:"capacity"`
	FullCapacity     float32 `parquet:"full_capacity"`
	DesignCapacity   float32 `parquet:"design_capacity"`
	Percentage       float32 `parquet:"percentage"`
	StateOfHealth    float32 `parquet:"state_of_health"`
	EnergyRate       float32 `parquet:"energy_rate"`
	Voltage          float32 `parquet:"voltage"`
	CPULoad          float32 `parquet:"cpu_load"`
	ScreenBrightness float32 `parquet:"screen_brightness"`
}

// writer writes rows of type T to a Parquet file. Rows go to a temporary
// file that is renamed into place on Close, so a crash never leaves a
// partial file under the final name.
type writer[T any] struct {
	mu       sync.Mutex
	path     string
	tmp      string
	file     *os.File
	pw       *parquet.GenericWriter[T]
	rowCount int64
	closed   bool
}

func newWriter[T any](path string) (*writer[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}

	return &writer[T]{
		path: path,
		tmp:  tmp,
		file: f,
		pw:   parquet.NewGenericWriter[T](f, parquet.Compression(&parquet.Zstd)),
	}, nil
}

func (w *writer[T]) Write(rows []T) error {
	if len(rows) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	n, err := w.pw.Write(rows)
	if err != nil {
		return fmt.Errorf("writing rows: %w", err)
	}
	w.rowCount += int64(n)
	return nil
}

// Close flushes the file and moves it to its final path.
func (w *writer[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.pw.Close(); err != nil {
		w.file.Close()
		os.Remove(w.tmp)
		return fmt.Errorf("closing writer: %w", err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tmp)
		return fmt.Errorf("closing file: %w", err)
	}
	return os.Rename(w.tmp, w.path)
}

// Abort discards the temporary file.
func (w *writer[T]) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	w.pw.Close()
	w.file.Close()
	os.Remove(w.tmp)
}

func (w *writer[T]) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// writeFile writes rows to path in one go.
func writeFile[T any](path string, rows []T) (int64, error) {
	w, err := newWriter[T](path)
	if err != nil {
		return 0, err
	}
	if err := w.Write(rows); err != nil {
		w.Abort()
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return w.RowCount(), nil
}
