package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"receipt-scanner-go/src/configs"
	"receipt-scanner-go/src/configs/database"
	"receipt-scanner-go/src/core/detector"
	"receipt-scanner-go/src/core/utils"
	"receipt-scanner-go/src/ocrproxy"

	// 导入所有providers以确保init函数被调用
	_ "receipt-scanner-go/src/core/providers/ocr/google"
	_ "receipt-scanner-go/src/core/providers/ocr/openai"

	"github.com/joho/godotenv"
)

func main() {
	fmt.Println("=== 连通性检查测试 ===")
	_ = godotenv.Load()

	// 加载配置
	config, path, err := configs.LoadConfig()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("使用配置文件: %s", path)

	// 创建日志记录器
	logger, err := utils.NewLogger(config)
	if err != nil {
		log.Fatalf("创建日志记录器失败: %v", err)
	}
	defer logger.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 打印选中的模块
	fmt.Printf("\n选中的模块:\n")
	for moduleType, moduleConfig := range config.SelectedModule {
		fmt.Printf("  %s: %s\n", moduleType, moduleConfig)
	}

	failed := 0

	fmt.Printf("\n检测服务 %s ... ", config.Detector.URL)
	det := detector.NewRemoteDetector(config.Detector.URL, configs.ParseDuration(config.Detector.Timeout, 5*time.Second))
	if err := det.CheckHealth(ctx); err != nil {
		fmt.Printf("失败: %v\n", err)
		failed++
	} else {
		fmt.Println("正常")
	}

	fmt.Printf("OCR provider ... ")
	if provider, err := ocrproxy.NewProvider(config, logger); err != nil {
		fmt.Printf("失败: %v\n", err)
		failed++
	} else {
		fmt.Printf("正常 (%s)\n", provider.Name())
	}

	fmt.Printf("数据库 ... ")
	if _, dbType, err := database.InitDB(); err != nil {
		fmt.Printf("不可用，将使用内存存储: %v\n", err)
	} else {
		fmt.Printf("正常 (%s)\n", dbType)
	}

	if failed > 0 {
		log.Fatalf("连通性检查失败 %d 项", failed)
	}
	fmt.Println("\n所有检查通过")
}
