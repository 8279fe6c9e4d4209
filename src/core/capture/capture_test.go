package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"receipt-scanner-go/src/configs"
	"receipt-scanner-go/src/core/detector"
	"receipt-scanner-go/src/core/guidance"
	imgproc "receipt-scanner-go/src/core/image"
	"receipt-scanner-go/src/core/utils"
)

type fakeStream struct {
	mu      sync.Mutex
	frame   image.Image
	stopped bool
}

func (s *fakeStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStreamStopped
	}
	return s.frame, nil
}

func (s *fakeStream) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *fakeStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeCamera struct {
	stream *fakeStream
	err    error
}

func (c *fakeCamera) Open(ctx context.Context) (Stream, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.stream, nil
}

type recordingView struct {
	mu       sync.Mutex
	outcomes []Outcome
	guidance chan guidance.State
}

func newRecordingView() *recordingView {
	return &recordingView{guidance: make(chan guidance.State, 16)}
}

func (v *recordingView) ShowGuidance(st guidance.State, overlays []Overlay) {
	v.guidance <- st
}

func (v *recordingView) ShowOutcome(out Outcome) {
	v.mu.Lock()
	v.outcomes = append(v.outcomes, out)
	v.mu.Unlock()
}

func (v *recordingView) results() []Outcome {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Outcome(nil), v.outcomes...)
}

func testFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{200, 200, 200, 255})
		}
	}
	return img
}

func testConfig() configs.CaptureConfig {
	cfg := &configs.Config{}
	cfg.ApplyDefaults()
	return cfg.Capture
}

func discardLogger() *utils.Logger {
	return utils.NewWriterLogger(io.Discard, utils.InfoLevel)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{"成功", 200, `{"responses":[{"fullTextAnnotation":{"text":"TOTAL 4.00"}}]}`, Success},
		{"2xx其他状态", 201, `{"responses":[{"fullTextAnnotation":{"text":"A"}}]}`, Success},
		{"服务端错误", 500, `Error processing image`, ScanFailed},
		{"客户端错误", 413, `{"responses":[{"fullTextAnnotation":{"text":"A"}}]}`, ScanFailed},
		{"没有文本", 200, `{"responses":[{}]}`, NoText},
		{"空白文本", 200, `{"responses":[{"fullTextAnnotation":{"text":"  \n "}}]}`, NoText},
		{"无法解析", 200, `not json`, ProcessingError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.status, []byte(tt.body))
			if got.Kind != tt.want {
				t.Errorf("Classify(%d) = %v, want %v", tt.status, got.Kind, tt.want)
			}
			if got.Kind != Success && got.Text != "" {
				t.Errorf("non-success outcome carries text %q", got.Text)
			}
		})
	}
}

func TestOpenSessionCameraDenied(t *testing.T) {
	cam := &fakeCamera{err: ErrCameraDenied}
	s, err := OpenSession(context.Background(), cam, nil)
	if !errors.Is(err, ErrCameraDenied) || s != nil {
		t.Fatalf("OpenSession = %v, %v", s, err)
	}
}

func TestHTTPCameraDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewHTTPCamera(srv.URL, time.Second).Open(context.Background())
	if !errors.Is(err, ErrCameraDenied) {
		t.Fatalf("err = %v, want ErrCameraDenied", err)
	}
}

func TestHTTPCameraFrames(t *testing.T) {
	var buf bytes.Buffer
	jpeg.Encode(&buf, testFrame(32, 16), nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	stream, err := NewHTTPCamera(srv.URL, time.Second).Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	img, err := stream.Frame(context.Background())
	if err != nil || img.Bounds().Dx() != 32 {
		t.Fatalf("Frame = %v, %v", img, err)
	}
	stream.Stop()
	if _, err := stream.Frame(context.Background()); !errors.Is(err, ErrStreamStopped) {
		t.Errorf("frame after stop err = %v", err)
	}
}

type fixedDetector struct{}

func (fixedDetector) Detect(ctx context.Context, frame image.Image) ([]detector.Detection, error) {
	return []detector.Detection{{Class: "cell phone", Score: 0.9, BBox: detector.BBox{Width: 100, Height: 80}}}, nil
}

type chanClock struct {
	ch chan time.Time
}

func (c *chanClock) C() <-chan time.Time { return c.ch }
func (c *chanClock) Stop()               {}

func TestSessionLifecycle(t *testing.T) {
	stream := &fakeStream{frame: testFrame(64, 48)}
	view := newRecordingView()
	s, err := OpenSession(context.Background(), &fakeCamera{stream: stream}, view)
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if s.ID == "" {
		t.Error("session has no ID")
	}

	loop := guidance.NewLoop(fixedDetector{}, guidance.DefaultParams(), imgproc.DefaultPreprocessOptions(), discardLogger(), nil)
	clock := &chanClock{ch: make(chan time.Time)}
	if err := s.Arm(context.Background(), loop, clock); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if !s.Armed() {
		t.Fatal("session not armed")
	}

	clock.ch <- time.Now()
	select {
	case st := <-view.guidance:
		if !st.Found {
			t.Errorf("guidance state = %+v", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no guidance rendered")
	}
	if len(s.Overlays()) != 1 {
		t.Errorf("overlays = %d, want 1", len(s.Overlays()))
	}

	s.Close()
	s.Close()

	if s.Armed() || loop.Phase() != guidance.Idle {
		t.Error("guidance still running after Close")
	}
	if !stream.isStopped() {
		t.Error("stream tracks not stopped")
	}
	if len(s.Overlays()) != 0 {
		t.Error("overlays not cleared")
	}
	if _, err := s.Frame(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Frame after close err = %v", err)
	}
}

func newBackend(t *testing.T, status int, body string, got *UploadRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			json.NewDecoder(r.Body).Decode(got)
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
}

func TestArmRacingCloseLeavesLoopIdle(t *testing.T) {
	for i := 0; i < 50; i++ {
		s, err := OpenSession(context.Background(), &fakeCamera{stream: &fakeStream{frame: testFrame(64, 48)}}, newRecordingView())
		if err != nil {
			t.Fatalf("OpenSession: %v", err)
		}
		loop := guidance.NewLoop(fixedDetector{}, guidance.DefaultParams(), imgproc.DefaultPreprocessOptions(), discardLogger(), nil)

		armed := make(chan error, 1)
		go func() {
			armed <- s.Arm(context.Background(), loop, &chanClock{ch: make(chan time.Time)})
		}()
		s.Close()
		err = <-armed

		if err != nil && !errors.Is(err, ErrSessionClosed) {
			t.Fatalf("Arm err = %v", err)
		}
		if loop.Phase() != guidance.Idle || s.Armed() {
			t.Fatalf("iteration %d: guidance still armed after Close", i)
		}
	}
}

func TestCaptureLiveSuccessRendersOnce(t *testing.T) {
	var req UploadRequest
	srv := newBackend(t, 200, `{"responses":[{"fullTextAnnotation":{"text":"SHOP\nTOTAL 7.10"}}]}`, &req)
	defer srv.Close()

	stream := &fakeStream{frame: testFrame(1280, 720)}
	view := newRecordingView()
	s, _ := OpenSession(context.Background(), &fakeCamera{stream: stream}, view)
	defer s.Close()

	p := NewPipeline(testConfig(), NewUploader(srv.URL, "", time.Second), nil, view, "cust-42", discardLogger(), nil)
	out := p.CaptureLive(context.Background(), s)

	if out.Kind != Success || out.Text != "SHOP\nTOTAL 7.10" {
		t.Fatalf("outcome = %+v", out)
	}
	if n := len(view.results()); n != 1 {
		t.Fatalf("rendered %d outcomes, want 1", n)
	}
	if req.CustomerID != "cust-42" || req.ScreenResolution != "1280x720" || req.ImageSize == 0 || req.StartTime == 0 {
		t.Errorf("upload request = %+v", req)
	}

	data, err := imgproc.DecodeBase64(req.Image)
	if err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("upload is not jpeg: %v", err)
	}
	if cfg.Width != 1024 {
		t.Errorf("live upload width = %d, want 1024", cfg.Width)
	}
}

func TestGalleryFailurePaths(t *testing.T) {
	var jpg bytes.Buffer
	jpeg.Encode(&jpg, testFrame(2400, 1200), nil)

	tests := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{"扫描失败", 502, "bad gateway", ScanFailed},
		{"没有文本", 200, `{"responses":[{"textAnnotations":[]}]}`, NoText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req UploadRequest
			srv := newBackend(t, tt.status, tt.body, &req)
			defer srv.Close()

			view := newRecordingView()
			p := NewPipeline(testConfig(), NewUploader(srv.URL, "", time.Second), nil, view, "", discardLogger(), nil)
			out := p.FromGallery(context.Background(), bytes.NewReader(jpg.Bytes()))

			if out.Kind != tt.want {
				t.Fatalf("kind = %v, want %v", out.Kind, tt.want)
			}
			results := view.results()
			if len(results) != 1 || results[0].Kind == Success {
				t.Errorf("rendered = %+v", results)
			}

			data, _ := imgproc.DecodeBase64(req.Image)
			cfg, _ := jpeg.DecodeConfig(bytes.NewReader(data))
			if cfg.Width != 1920 {
				t.Errorf("gallery upload width = %d, want 1920", cfg.Width)
			}
		})
	}
}

func TestUploadNetworkError(t *testing.T) {
	srv := newBackend(t, 200, "", nil)
	url := srv.URL
	srv.Close()

	view := newRecordingView()
	p := NewPipeline(testConfig(), NewUploader(url, "", time.Second), nil, view, "", discardLogger(), nil)
	out := p.FromGallery(context.Background(), bytes.NewReader(mustJPEG(t)))
	if out.Kind != ProcessingError {
		t.Fatalf("kind = %v, want ProcessingError", out.Kind)
	}
	if len(view.results()) != 1 {
		t.Error("outcome not rendered exactly once")
	}
}

func TestUploaderSendsBearerToken(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		io.WriteString(w, `{"responses":[{"fullTextAnnotation":{"text":"x"}}]}`)
	}))
	defer srv.Close()

	out := NewUploader(srv.URL, "tok", time.Second).Submit(context.Background(), UploadRequest{Image: "eA=="})
	if out.Kind != Success || auth != "Bearer tok" {
		t.Errorf("outcome = %+v, auth = %q", out, auth)
	}
}

func TestDirSaver(t *testing.T) {
	dir := t.TempDir()
	path, err := DirSaver{Dir: filepath.Join(dir, "scans")}.Save(context.Background(), "../receipt_1.jpg", []byte("jpg"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Dir(path) != filepath.Join(dir, "scans") {
		t.Errorf("saved outside target dir: %s", path)
	}
	if data, _ := os.ReadFile(path); string(data) != "jpg" {
		t.Errorf("content = %q", data)
	}
}

func TestPipelineSavesLocally(t *testing.T) {
	srv := newBackend(t, 200, `{"responses":[{"fullTextAnnotation":{"text":"x"}}]}`, nil)
	defer srv.Close()

	dir := t.TempDir()
	p := NewPipeline(testConfig(), NewUploader(srv.URL, "", time.Second), DirSaver{Dir: dir}, nil, "", discardLogger(), nil)
	p.FromGallery(context.Background(), bytes.NewReader(mustJPEG(t)))

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("saved files = %d, want 1", len(entries))
	}
}

func mustJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testFrame(40, 30), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
