package xlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// ConsoleWriter turns zap's JSON lines into one readable line on stdout
// and forwards them to Hook.
type ConsoleWriter struct {
	Stdout bool
	Color  bool
	Hook   func(p []byte)
}

var console = &ConsoleWriter{}

func (w *ConsoleWriter) Write(p []byte) (n int, err error) {
	n = len(p)
	if !w.Stdout && w.Hook == nil {
		return
	}

	entry := map[string]interface{}{}
	if json.Unmarshal(p, &entry) != nil {
		return n, nil
	}

	level, _ := entry["level"].(string)
	if w.Stdout {
		fmt.Fprintln(os.Stdout, w.format(entry, level))
	}
	if w.Hook != nil && level != "debug" {
		w.Hook(p)
	}
	return
}

func (w *ConsoleWriter) format(entry map[string]interface{}, level string) string {
	ts, _ := entry["time"].(string)
	if t, err := time.Parse(timeLayout, ts); err == nil {
		ts = t.Format("2006/01/02 15:04:05")
	}

	file, _ := entry["file"].(string)
	file = fmt.Sprintf("%-20s", file)
	if len(file) > 20 {
		file = file[len(file)-20:]
	}

	// extra fields prefixed with x- are shown inline
	var extras []string
	for k, v := range entry {
		if strings.HasPrefix(k, "x-") {
			extras = append(extras, k+":"+fmt.Sprint(v))
		}
	}
	sort.Strings(extras)
	tail := ""
	if len(extras) > 0 {
		tail = " { " + strings.Join(extras, " ") + " }"
	}

	pre, suf := "", ""
	if w.Color {
		pre, suf = colorFor(level)
	}
	return fmt.Sprintf("%s[%v] %s %s: %v%s%s", pre, entry["app"], ts, file, entry["msg"], tail, suf)
}
