package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bitwise74/eats-api/app"
	"bitwise74/eats-api/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// shutdownTimeout leaves room for a verification mail that started right
// before the signal.
const shutdownTimeout = 35 * time.Second

func main() {
	gin.SetMode(gin.ReleaseMode)

	err := config.Setup()
	if err != nil {
		panic(err)
	}

	if err := run(); err != nil {
		panic(err)
	}
}

func run() error {
	a, err := app.NewRouter()
	if err != nil {
		return err
	}
	defer a.Close()
	defer zap.L().Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		zap.L().Info("Server starting", zap.String("addr", a.Addr()))
		errc <- a.Run()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// A second signal kills the process
	stop()
	zap.L().Info("Shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.Shutdown(sctx); err != nil {
		return err
	}

	zap.L().Info("Server stopped")
	return nil
}
