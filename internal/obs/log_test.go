package obs

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestLogRequestWritesJSONLine(t *testing.T) {
	logger := Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	LogRequest(map[string]any{"msg": "request_complete", "status": 200})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line not valid JSON: %v", err)
	}
	if entry["msg"] != "request_complete" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestLogRequestEmitsFallbackOnMarshalError(t *testing.T) {
	logger := Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	LogRequest(map[string]any{"bad": make(chan int)})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("fallback line not valid JSON: %v", err)
	}
	if entry["level"] != "error" {
		t.Fatalf("unexpected fallback entry: %v", entry)
	}
}
