package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"receipt-scanner-go/src/configs"
	"receipt-scanner-go/src/core/utils"

	"github.com/gin-gonic/gin"
)

func TestCfgDoesNotLeakSecrets(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &configs.Config{
		SelectedModule: map[string]string{"OCR": "GoogleVision"},
		OCR:            map[string]configs.OCRConfig{"GoogleVision": {Type: "google", APIKey: "super-secret-key"}},
	}
	cfg.Server.Auth.Secret = "jwt-secret"
	cfg.ApplyDefaults()

	svc, _ := NewDefaultCfgService(cfg, utils.NewWriterLogger(io.Discard, utils.InfoLevel))
	engine := gin.New()
	svc.Start(context.Background(), engine, engine.Group("/api"))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cfg", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, secret := range []string{"super-secret-key", "jwt-secret"} {
		if strings.Contains(body, secret) {
			t.Errorf("response leaks %q", secret)
		}
	}

	var got ClientConfig
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.OCRProvider != "GoogleVision" || got.Guidance.Compensation != 2.5 || got.Capture.GalleryMaxSide != 1920 {
		t.Errorf("config = %+v", got)
	}
}
