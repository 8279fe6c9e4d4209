package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"receipt-scanner-go/src/configs"
	"receipt-scanner-go/src/core/capture"
	"receipt-scanner-go/src/core/detector"
	"receipt-scanner-go/src/core/guidance"
	imgproc "receipt-scanner-go/src/core/image"
	"receipt-scanner-go/src/core/utils"

	"github.com/joho/godotenv"
)

// consoleView 在终端展示引导与识别结果
type consoleView struct {
	out  io.Writer
	last string
}

func (v *consoleView) ShowGuidance(st guidance.State, overlays []capture.Overlay) {
	line := fmt.Sprintf("[%s] %s (%.2f)", st.Indicator, st.Message, st.Ratio)
	if line == v.last {
		return
	}
	v.last = line
	fmt.Fprintln(v.out, line)
}

func (v *consoleView) ShowOutcome(out capture.Outcome) {
	fmt.Fprintln(v.out, out.Message())
	if out.Kind == capture.Success {
		fmt.Fprintln(v.out, "----")
		fmt.Fprintln(v.out, out.Text)
		fmt.Fprintln(v.out, "----")
	}
}

func main() {
	configPath := flag.String("config", "", "配置文件路径，默认 .config.yaml / config.yaml")
	cameraURL := flag.String("camera", "", "摄像头快照地址")
	file := flag.String("file", "", "直接上传本地图片")
	customer := flag.String("customer", "", "客户ID")
	flag.Parse()

	_ = godotenv.Load()

	var (
		config *configs.Config
		err    error
	)
	if *configPath != "" {
		config, err = configs.LoadConfigFrom(*configPath)
	} else {
		config, _, err = configs.LoadConfig()
	}
	if err != nil {
		fmt.Println("加载配置失败:", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(config)
	if err != nil {
		fmt.Println("初始化日志系统失败:", err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	view := &consoleView{out: os.Stdout}
	uploader := capture.NewUploader(config.Capture.Endpoint, config.Capture.Token, configs.ParseDuration(config.Capture.Timeout, 60*time.Second))
	var saver capture.Saver = capture.NopSaver{}
	if config.Capture.SaveDir != "" {
		saver = capture.DirSaver{Dir: config.Capture.SaveDir}
	}
	pipeline := capture.NewPipeline(config.Capture, uploader, saver, view, *customer, logger, nil)

	switch {
	case *file != "":
		out := pipeline.FromFile(ctx, *file)
		if out.Kind != capture.Success {
			os.Exit(1)
		}
	case *cameraURL != "":
		if err := runCamera(ctx, config, *cameraURL, pipeline, view, logger); err != nil {
			logger.Error("拍摄失败: %v", err)
			os.Exit(1)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// runCamera 打开摄像头并启动引导，回车拍摄，q 退出
func runCamera(ctx context.Context, config *configs.Config, url string, pipeline *capture.Pipeline, view capture.View, logger *utils.Logger) error {
	cam := capture.NewHTTPCamera(url, configs.ParseDuration(config.Detector.Timeout, 5*time.Second))
	session, err := capture.OpenSession(ctx, cam, view)
	if err != nil {
		return err
	}
	defer session.Close()

	det := detector.NewRemoteDetector(config.Detector.URL, configs.ParseDuration(config.Detector.Timeout, 5*time.Second))
	opts := imgproc.PreprocessOptions{
		MaxSide:    config.Guidance.MaxSide,
		Contrast:   config.Guidance.Contrast,
		Brightness: config.Guidance.Brightness,
	}
	loop := guidance.NewLoop(det, guidance.ParamsFromConfig(config.Guidance), opts, logger, nil)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	for {
		if !session.Armed() {
			if err := session.Arm(ctx, loop, guidance.NewTickerClock(config.Guidance.FPS)); err != nil {
				return err
			}
			fmt.Println("对准收据后按回车拍摄，输入 q 退出")
		}

		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok || line == "q" {
				return nil
			}
			pipeline.CaptureLive(ctx, session)
		}
	}
}
