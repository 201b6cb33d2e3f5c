// main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autopatch/internal/websocket"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := NewApp()
	if err := app.Startup(ctx); err != nil {
		log.Printf("[Main] startup failed: %v", err)
		os.Exit(1)
	}

	cfg := app.Config()
	wsServer := websocket.NewServer(app, cfg.ListenAddr, cfg.AuthKey)

	// 后台事件（文件变化等）广播给所有客户端
	app.SetBroadcaster(wsServer)

	if _, err := wsServer.Start(ctx); err != nil {
		log.Printf("[Main] failed to start WebSocket server: %v", err)
		os.Exit(1)
	}

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	wsServer.Stop(shutdownCtx)
	app.Shutdown(shutdownCtx)
}
