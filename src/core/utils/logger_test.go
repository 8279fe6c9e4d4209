package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerFormatsMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, InfoLevel)

	logger.Info("识别耗时 %dms", 42)

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Message != "识别耗时 42ms" {
		t.Errorf("message = %q", entry.Message)
	}
	if entry.Fields != nil {
		t.Errorf("fields = %v, want nil", entry.Fields)
	}
}

func TestLoggerStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, InfoLevel).WithTag("ocr")

	logger.Warn("写入失败", errors.New("timeout"))

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Tag != "ocr" || entry.Level != WarnLevel {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Fields != "timeout" {
		t.Errorf("fields = %v, want timeout", entry.Fields)
	}
}

func TestLoggerDebugGated(t *testing.T) {
	var buf bytes.Buffer
	NewWriterLogger(&buf, InfoLevel).Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug written at info level: %s", buf.String())
	}

	NewWriterLogger(&buf, DebugLevel).Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("debug missing at debug level")
	}
}
