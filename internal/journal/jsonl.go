package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	ErrClosed     = errors.New("journal writer is closed")
	ErrBufferFull = errors.New("journal buffer full")
)

// Writer appends JSON records to <baseDir>/<UTC date>/<subDir>/<unix>.jsonl
// from a background goroutine. A new file is opened when the UTC date
// changes; lumberjack rotates it by size in between.
type Writer struct {
	baseDir   string
	subDir    string
	maxSizeMB int
	now       func() time.Time

	writeCh chan any
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	mu          sync.Mutex
	currentDate string
	logger      *lumberjack.Logger
}

// NewWriter starts a writer. bufferSize bounds how many records may wait
// for the disk before Write starts dropping them.
func NewWriter(baseDir, subDir string, bufferSize, maxSizeMB int) *Writer {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	w := &Writer{
		baseDir:   baseDir,
		subDir:    subDir,
		maxSizeMB: maxSizeMB,
		now:       time.Now,
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
	}
	w.wg.Add(1)
	go w.writeLoop()
	return w
}

// Write queues record without blocking.
func (w *Writer) Write(record any) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	select {
	case w.writeCh <- record:
		return nil
	default:
		slog.Warn("journal buffer full, dropping record", "subdir", w.subDir)
		return ErrBufferFull
	}
}

// Close flushes queued records and closes the current file.
func (w *Writer) Close() error {
	w.once.Do(func() { close(w.done) })
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger != nil {
		err := w.logger.Close()
		w.logger = nil
		return err
	}
	return nil
}

func (w *Writer) writeLoop() {
	defer w.wg.Done()
	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-w.done:
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	deadline := time.After(5 * time.Second)
	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-deadline:
			slog.Warn("journal close timeout, some records may be lost", "subdir", w.subDir)
			return
		default:
			return
		}
	}
}

func (w *Writer) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("journal marshal failed", "error", err, "subdir", w.subDir)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	date := w.now().UTC().Format("2006-01-02")
	if w.logger == nil || date != w.currentDate {
		if err := w.openForDate(date); err != nil {
			slog.Error("journal open failed", "error", err, "subdir", w.subDir)
			return
		}
	}
	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "error", err, "subdir", w.subDir)
	}
}

func (w *Writer) openForDate(date string) error {
	if w.logger != nil {
		if err := w.logger.Close(); err != nil {
			slog.Debug("journal close previous file failed", "error", err)
		}
		w.logger = nil
	}

	dir := filepath.Join(w.baseDir, date, w.subDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create journal dir %s: %w", dir, err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%d.jsonl", w.now().Unix()))
	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 30,
		MaxAge:     90,
		LocalTime:  false,
	}
	w.currentDate = date
	slog.Info("journal file opened", "file", filename, "subdir", w.subDir)
	return nil
}
