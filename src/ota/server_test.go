package ota

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestVersionRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	file := filepath.Join(dir, "VERSION")

	tests := []struct {
		name    string
		version string
		file    string
		want    string
	}{
		{"配置版本", "1.4.0", "", "1.4.0"},
		{"文件优先", "1.4.0", "2.0.1\n", "2.0.1"},
		{"默认版本", "", "", "1.0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			versionFile := ""
			if tt.file != "" {
				os.WriteFile(file, []byte(tt.file), 0644)
				versionFile = file
			}
			svc := NewDefaultVersionService(tt.version, versionFile, "")
			engine := gin.New()
			svc.Start(context.Background(), engine, engine.Group("/api"))

			for _, path := range []string{"/version.json", "/api/version"} {
				rec := httptest.NewRecorder()
				engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
				var body struct {
					Version string `json:"version"`
				}
				json.Unmarshal(rec.Body.Bytes(), &body)
				if rec.Code != http.StatusOK || body.Version != tt.want {
					t.Errorf("%s: status = %d, version = %q, want %q", path, rec.Code, body.Version, tt.want)
				}
				if rec.Header().Get("Cache-Control") != "no-store" {
					t.Errorf("%s: version marker must not be cached", path)
				}
			}
		})
	}
}

func TestVersionChangesWithFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "VERSION")
	os.WriteFile(file, []byte("1.0.0"), 0644)
	svc := NewDefaultVersionService("", file, "")

	if svc.Version() != "1.0.0" {
		t.Fatalf("version = %q", svc.Version())
	}
	os.WriteFile(file, []byte("1.0.1"), 0644)
	if svc.Version() != "1.0.1" {
		t.Errorf("version = %q after deploy", svc.Version())
	}
}
