package analytics

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"receipt-scanner-go/src/configs/database"
	"receipt-scanner-go/src/core/utils"

	"github.com/gin-gonic/gin"
)

func entryAt(i int) Entry {
	return Entry{
		Timestamp:      time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC),
		ProcessingTime: int64(i),
		DeviceInfo:     fmt.Sprintf("device-%d", i),
		ImageSize:      1024,
		Success:        i%2 == 0,
	}
}

func TestMemoryStoreRetention(t *testing.T) {
	store := NewMemoryStore(DefaultRetention)
	ctx := context.Background()
	for i := 0; i < 1005; i++ {
		if err := store.Append(ctx, entryAt(i)); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	entries, _ := store.Recent(ctx)
	if len(entries) != 1000 {
		t.Fatalf("len = %d, want 1000", len(entries))
	}
	if entries[0].ProcessingTime != 5 || entries[999].ProcessingTime != 1004 {
		t.Errorf("kept range = %d..%d, want 5..1004", entries[0].ProcessingTime, entries[999].ProcessingTime)
	}
}

func TestGormStoreRetention(t *testing.T) {
	db, _, err := database.Open("sqlite://" + filepath.Join(t.TempDir(), "analytics.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	store := NewGormStore(db, 10)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		e := entryAt(i)
		e.ScreenResolution = "1280x720"
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	entries, err := store.Recent(ctx)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("len = %d, want 10", len(entries))
	}
	if entries[0].DeviceInfo != "device-5" || entries[9].DeviceInfo != "device-14" {
		t.Errorf("kept %s..%s", entries[0].DeviceInfo, entries[9].DeviceInfo)
	}
	if entries[0].ScreenResolution != "1280x720" {
		t.Errorf("metadata lost: %+v", entries[0])
	}
}

func TestWriteCSV(t *testing.T) {
	entries := []Entry{
		entryAt(0),
		{Timestamp: time.Unix(0, 0), DeviceInfo: `Mozilla "Pixel", Android`, Error: "upstream\nfailure"},
	}

	var sb strings.Builder
	if err := WriteCSV(&sb, entries); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(sb.String())).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if strings.Join(records[0], ",") != "timestamp,processingTime,deviceInfo,imageSizeBytes,success,error" {
		t.Errorf("header = %v", records[0])
	}
	if records[2][2] != `Mozilla "Pixel", Android` || records[2][5] != "upstream\nfailure" {
		t.Errorf("escaped fields did not round-trip: %q", records[2])
	}
	if records[1][4] != "true" || records[2][4] != "false" {
		t.Errorf("success column = %q, %q", records[1][4], records[2][4])
	}
}

func newRouter(t *testing.T, store Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	svc := NewService(store, utils.NewWriterLogger(io.Discard, utils.InfoLevel))
	if err := svc.Start(context.Background(), engine, engine.Group("/api")); err != nil {
		t.Fatal(err)
	}
	return engine
}

func TestLogsHandlers(t *testing.T) {
	store := NewMemoryStore(DefaultRetention)
	store.Append(context.Background(), entryAt(1))
	store.Append(context.Background(), entryAt(2))
	engine := newRouter(t, store)

	tests := []struct {
		name        string
		path        string
		contentType string
		check       func(t *testing.T, rec *httptest.ResponseRecorder)
	}{
		{"JSON列表", "/logs", "application/json", func(t *testing.T, rec *httptest.ResponseRecorder) {
			var got []Entry
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].DeviceInfo != "device-1" {
				t.Errorf("logs = %+v", got)
			}
		}},
		{"CSV下载", "/download-logs", "text/csv", func(t *testing.T, rec *httptest.ResponseRecorder) {
			if cd := rec.Header().Get("Content-Disposition"); cd != "attachment; filename=analytics_logs.csv" {
				t.Errorf("Content-Disposition = %q", cd)
			}
			if lines := strings.Count(rec.Body.String(), "\n"); lines != 3 {
				t.Errorf("csv lines = %d, want 3", lines)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, tt.contentType) {
				t.Errorf("Content-Type = %q", ct)
			}
			tt.check(t, rec)
		})
	}
}

func TestLogsEmptyIsArray(t *testing.T) {
	engine := newRouter(t, NewMemoryStore(0))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs", nil))
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", rec.Body.String())
	}
}
