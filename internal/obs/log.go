// Package obs holds the observability plumbing shared by the HTTP and
// gRPC surfaces: a JSON line logger, Prometheus metrics, and build info.
package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	initLogger sync.Once
	jsonLogger *log.Logger
)

// Logger returns the process-wide logger. Output is one JSON object per
// line on stdout; request logs and audit events both write through it.
func Logger() *log.Logger {
	initLogger.Do(func() {
		jsonLogger = log.New(os.Stdout, "", 0)
	})
	return jsonLogger
}

// LogRequest writes one JSON log line. A marshal failure emits a fixed
// fallback line instead of dropping the event.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log entry not marshallable"}`)
		return
	}
	Logger().Println(string(data))
}
