// Package filedb is an append-only journal file: one JSON line per commit,
// followed by tailing readers.
package filedb

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vmledger/pkg/xlog"

	"github.com/nxadm/tail"
)

var logger = xlog.GetLogger()

var ErrClosed = errors.New("filedb: closed")

const maxLineSize = 16 << 20

type Filedb struct {
	mu       sync.Mutex
	File     *os.File
	FilePath string

	// Handler consumes batches of lines in Drain
	Handler func([]string) error
}

func New(filePath string) (fdb *Filedb, err error) {
	fdb = &Filedb{
		FilePath: filePath,
	}
	err = fdb.Open()

	return
}

func (f *Filedb) Open() (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.File != nil {
		return
	}

	err = os.MkdirAll(filepath.Dir(f.FilePath), 0755)
	if err != nil {
		return
	}

	f.File, err = os.OpenFile(f.FilePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	return
}

func (f *Filedb) Close() (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.File == nil {
		return
	}
	err = f.File.Close()
	f.File = nil
	return
}

// WriteLine appends s and a trailing newline if s lacks one, then syncs.
// A line is on disk once this returns nil.
func (f *Filedb) WriteLine(s string) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.File == nil {
		return ErrClosed
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	_, err = f.File.WriteString(s)
	if err != nil {
		logger.Errorf("filedb WriteLine %s failed with err:%s", f.FilePath, err)
		return
	}
	return f.File.Sync()
}

// ReadLastLine reads the last non-empty line of the file, "" for an empty file.
func (f *Filedb) ReadLastLine() (s string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.File == nil {
		return "", ErrClosed
	}
	stat, err := f.File.Stat()
	if err != nil {
		return
	}
	size := stat.Size()

	// read backwards in growing windows until a full line is inside
	for window := int64(1024); ; window *= 2 {
		off := size - window
		if off < 0 {
			off = 0
		}
		b := make([]byte, size-off)
		_, err = f.File.ReadAt(b, off)
		if err != nil && err != io.EOF {
			return "", err
		}
		err = nil

		b = bytes.TrimRight(b, " \n")
		i := bytes.LastIndexByte(b, '\n')
		if i >= 0 {
			return string(b[i+1:]), nil
		}
		if off == 0 {
			return string(b), nil
		}
	}
}

// ReadFirstLine reads the first non-empty line of the file
func (f *Filedb) ReadFirstLine() (s string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.File == nil {
		return "", ErrClosed
	}

	r := bufio.NewReader(io.NewSectionReader(f.File, 0, 1<<62))
	for {
		line, err := r.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
		if err != nil {
			if err == io.EOF {
				return "", io.EOF
			}
			return "", err
		}
	}
}

// Scan calls fn with every complete line from the start of the file, in order.
func (f *Filedb) Scan(fn func(string) error) (err error) {
	file, err := os.Open(f.FilePath)
	if err != nil {
		return
	}
	defer file.Close()

	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err = fn(sc.Text()); err != nil {
			return
		}
	}
	return sc.Err()
}

// Tailf sends every line of the file, from the start, then follows new
// writes until ctx is done. Lines are never skipped: a read error ends the
// tail so the reader can start over without losing order.
func (f *Filedb) Tailf(ctx context.Context, ch chan<- string) (err error) {
	ta, err := tail.TailFile(f.FilePath, tail.Config{
		Follow:        true,
		ReOpen:        true,
		CompleteLines: true,
		Logger:        tail.DiscardingLogger,
	})
	if err != nil {
		return
	}
	defer ta.Cleanup()
	defer ta.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-ta.Lines:
			if !ok {
				return ta.Err()
			}
			if line.Err != nil {
				return line.Err
			}
			if line.Text == "" {
				continue
			}
			select {
			case ch <- line.Text:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

type PerformanceData struct {
	Name      string
	FirstTime time.Time
	LastTime  time.Time
	Size      int
}

func (p *PerformanceData) Rate() int64 {
	secs := p.LastTime.Sub(p.FirstTime).Seconds()
	if secs <= 0 {
		return 0
	}
	return int64(float64(p.Size) / secs)
}

// Drain reads lines from ch and hands them to f.Handler in batches of up
// to 100, as many as are already buffered. Returns when ch is closed or
// the handler fails.
func (f *Filedb) Drain(ch <-chan string) (err error) {
	logger.Infof("filedb Drain start with %s", f.FilePath)
	perf := &PerformanceData{Name: f.FilePath}
	defer func() {
		if err != nil {
			logger.Errorf("filedb Drain %s failed after %d lines with err:%s", f.FilePath, perf.Size, err)
		} else {
			logger.Infof("filedb Drain %s done with %d lines at %d/sec", f.FilePath, perf.Size, perf.Rate())
		}
	}()

	if f.Handler == nil {
		return errors.New("filedb: no handler")
	}

	ss := make([]string, 100)
	report := time.NewTicker(30 * time.Second)
	defer report.Stop()

	for {
		select {
		case <-report.C:
			logger.Infof("filedb Drain %s handled %d lines at %d/sec", f.FilePath, perf.Size, perf.Rate())
		default:
		}

		size := len(ch)
		if size < 1 {
			size = 1
		}
		if size > len(ss) {
			size = len(ss)
		}

		var ok bool
		for i := 0; i < size; i++ {
			ss[i], ok = <-ch
			if !ok {
				if i > 0 {
					err = f.Handler(ss[:i])
				}
				return
			}
		}

		if perf.FirstTime.IsZero() {
			perf.FirstTime = time.Now()
		}

		err = f.Handler(ss[:size])
		if err != nil {
			return
		}

		perf.LastTime = time.Now()
		perf.Size += size
	}
}
