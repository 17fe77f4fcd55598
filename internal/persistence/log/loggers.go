package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"itemconverter.ai/internal/convert/exec"
	"itemconverter.ai/internal/sim/session"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst. Each hour is one zstd stream.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	p := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// ReadJSONL decodes every line of a .jsonl.zst file, calling fn per line.
func ReadJSONL(path string, fn func(json.RawMessage) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	jd := json.NewDecoder(dec)
	for {
		var line json.RawMessage
		if err := jd.Decode(&line); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if err := fn(line); err != nil {
			return err
		}
	}
}

// ConversionLogger writes one entry per conversion attempt.
type ConversionLogger struct{ w *JSONLZstdWriter }

func NewConversionLogger(auditDir string) *ConversionLogger {
	return &ConversionLogger{w: NewJSONLZstdWriter(filepath.Join(auditDir, "conversions"), "conversions")}
}

func (l *ConversionLogger) WriteConversion(v exec.Record) error { return l.w.Write(v) }
func (l *ConversionLogger) Close() error                        { return l.w.Close() }

// ReloadLogger writes one entry per graph rebuild.
type ReloadLogger struct{ w *JSONLZstdWriter }

func NewReloadLogger(auditDir string) *ReloadLogger {
	return &ReloadLogger{w: NewJSONLZstdWriter(filepath.Join(auditDir, "reloads"), "reloads")}
}

func (l *ReloadLogger) WriteReload(v session.ReloadEntry) error { return l.w.Write(v) }
func (l *ReloadLogger) Close() error                            { return l.w.Close() }
