package main

import (
	"flag"
	"os"

	"github.com/qverse/iotbridge/internal/app"
	"github.com/qverse/iotbridge/internal/config"
	"github.com/qverse/iotbridge/internal/logger"
)

func main() {
	var (
		listenAddr string
		dbPath     string
	)
	flag.StringVar(&listenAddr, "addr", "", "监听地址，覆盖配置文件")
	flag.StringVar(&dbPath, "db", "", "数据库路径，覆盖配置文件")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", err)
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	if err := app.Run(cfg); err != nil {
		logger.Error("Application exited with error", err)
		os.Exit(1)
	}
}
