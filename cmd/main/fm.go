package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vmledger/pkg/config"
	"vmledger/pkg/filedb"
)

// startFiledbMonitor starts the filedb monitor app
//
//	Function 1: Print the journal write rate of every filedb every 30 seconds
func startFiledbMonitor(ctx context.Context) (err error) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		if err = runFiledbMonitorOne(); err != nil {
			logger.Errorf("runFiledbMonitorOne failed with err:%s", err)
		}
	}
}

type journalMark struct {
	Ts    int64 `json:"ts"`
	LogID int64 `json:"logID"`
}

// runFiledbMonitorOne compares the first and last line of each .log file
// under <data_dir>/filedb
func runFiledbMonitorOne() (err error) {
	dir := filepath.Join(config.Shared.DataDir, "filedb")

	return filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), ".log") {
			return nil
		}

		s, err := journalRate(path)
		if err != nil {
			return err
		}
		fmt.Println(s)
		return nil
	})
}

func journalRate(path string) (s string, err error) {
	fdb, err := filedb.New(path)
	if err != nil {
		return
	}
	defer fdb.Close()

	firstLine, err := fdb.ReadFirstLine()
	if errors.Is(err, io.EOF) {
		return fmt.Sprintf("Benchmark: %s is empty", path), nil
	}
	if err != nil {
		return
	}
	lastLine, err := fdb.ReadLastLine()
	if err != nil {
		return
	}

	var first, last journalMark
	if err = json.Unmarshal([]byte(firstLine), &first); err != nil {
		return
	}
	if err = json.Unmarshal([]byte(lastLine), &last); err != nil {
		return
	}

	d := time.Duration(last.Ts - first.Ts)
	n := last.LogID - first.LogID
	rate := int64(0)
	if int64(d.Seconds()) > 0 {
		rate = n / int64(d.Seconds())
	}
	return fmt.Sprintf(
		"Benchmark: %s saved %d logs to filedb in %s at %s with rate %d/sec",
		path, n, d, time.Unix(0, last.Ts).Format(time.RFC3339), rate,
	), nil
}
