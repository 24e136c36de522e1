package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/autotls"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"recognition-server/config"
	"recognition-server/faces"
	_ "recognition-server/faces/onnx"
	"recognition-server/handlers"
	"recognition-server/logger"
	"recognition-server/stats"
	"recognition-server/utils"
)

func modelOptions() faces.Options {
	return faces.Options{
		Backend:      config.FACE_BACKEND,
		ModelsDir:    config.MODELS_DIR,
		ModelName:    config.MODEL_NAME,
		DetModel:     config.DET_MODEL,
		RecModel:     config.REC_MODEL,
		DetSize:      config.DET_SIZE,
		DetThreshold: float32(config.DET_THRESHOLD),
		NMSThreshold: float32(config.NMS_THRESHOLD),
		UseGPU:       config.USE_GPU,
		GPUDeviceID:  config.GPU_DEVICE_ID,
		LibraryPath:  config.ORT_LIBRARY_PATH,
		CNN:          config.FACE_DETECT_CNN,
	}
}

func newRouter(h *handlers.Handler, counters *stats.Registry) *gin.Engine {
	router := gin.New()
	_ = router.SetTrustedProxies([]string{})
	router.Use(gin.Recovery(), utils.RequestID(), utils.AccessLog(counters))
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"*"},
		ExposeHeaders:   []string{"Content-Length", utils.RequestIDHeader},
		MaxAge:          30 * 24 * time.Hour,
	}))
	if !config.DEBUG_MODE {
		router.Use(gzip.Gzip(gzip.DefaultCompression))
	} else {
		router.Use(utils.ErrorLogMiddleware)
	}
	router.Use((&utils.CacheRouter{CacheTime: utils.CacheNoCache}).Handler()) // Nothing is cacheable here
	router.Use(utils.LimitBody(int64(config.MAX_UPLOAD_MB) << 20))

	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/stats", h.Stats)
	router.POST("/detect_faces", h.DetectFaces)
	return router
}

// tlsHandler bounds request time on the autotls path, where the http.Server
// (and its ReadTimeout/WriteTimeout) is not ours to configure
func tlsHandler(h http.Handler, timeout time.Duration) http.Handler {
	if timeout <= 0 {
		return h
	}
	return http.TimeoutHandler(h, timeout, `{"detail":"Request timed out"}`)
}

// awaitDrain waits for a server that shuts itself down on context cancellation
func awaitDrain(ctx context.Context, errc <-chan error) error {
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func main() {
	logger.Init(config.LOG_LEVEL, config.LOG_FILE, config.DEBUG_MODE)
	if !config.DEBUG_MODE {
		gin.SetMode(gin.ReleaseMode)
	}
	// gin debug output and recovered panics go through logrus
	gin.DefaultWriter = logger.Get().Writer()
	gin.DefaultErrorWriter = logger.Get().WriterLevel(logrus.ErrorLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	counters := stats.New()
	model := faces.NewModel(modelOptions())
	router := newRouter(handlers.New(model, counters), counters)

	// Serve /health while the model loads, /detect_faces answers 503 until then
	go func() {
		if err := model.Load(); err != nil {
			logger.Fatal(logger.Fields{"backend": config.FACE_BACKEND, "error": err}, "Could not load face model")
		}
	}()

	errc := make(chan error, 1)
	var srv *http.Server
	if config.TLS_DOMAINS != "" {
		handler := tlsHandler(router, config.WRITE_TIMEOUT)
		logger.Info(logger.Fields{"domains": config.TLS_DOMAINS}, "Starting TLS server")
		go func() {
			errc <- autotls.RunWithContext(ctx, handler, strings.Split(config.TLS_DOMAINS, ",")...)
		}()
	} else {
		srv = &http.Server{
			Addr:         config.BindAddress(),
			Handler:      router,
			ReadTimeout:  config.READ_TIMEOUT,
			WriteTimeout: config.WRITE_TIMEOUT,
		}
		logger.Info(logger.Fields{"address": srv.Addr, "backend": config.FACE_BACKEND, "backends": faces.Backends()}, "Starting server")
		go func() {
			errc <- srv.ListenAndServe()
		}()
	}

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(logger.Fields{"error": err}, "Server stopped")
		}
	case <-ctx.Done():
		logger.Info(nil, "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.SHUTDOWN_TIMEOUT)
		if srv != nil {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error(logger.Fields{"error": err}, "Forced shutdown")
			}
		} else {
			if err := awaitDrain(shutdownCtx, errc); err != nil {
				logger.Error(logger.Fields{"error": err}, "Forced shutdown")
			}
		}
		cancel()
	}
	if err := model.Close(); err != nil {
		logger.Error(logger.Fields{"error": err}, "Model close failed")
	}
	logger.Info(nil, "Server stopped")
}
