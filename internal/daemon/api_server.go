package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"storyreel/internal/config"
	"storyreel/internal/logging"
	"storyreel/internal/queue"
	"storyreel/internal/render"
	"storyreel/internal/services"
)

const maxRequestBody = "1M"

// HealthResponse is the fixed liveness payload of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Model   string `json:"model"`
}

// ProcessRequest is the render trigger payload. The s3_bucket and video_id
// aliases are accepted from older orchestrators.
type ProcessRequest struct {
	StorageBucket string `json:"storage_bucket"`
	TranscriptKey string `json:"transcript_key"`
	AudioKey      string `json:"audio_key"`
	JobID         string `json:"job_id"`
	S3Bucket      string `json:"s3_bucket"`
	VideoID       string `json:"video_id"`
}

// Job maps the request onto a render job, preferring the current field names.
func (r ProcessRequest) Job() render.Job {
	bucket := strings.TrimSpace(r.StorageBucket)
	if bucket == "" {
		bucket = strings.TrimSpace(r.S3Bucket)
	}
	id := strings.TrimSpace(r.JobID)
	if id == "" {
		id = strings.TrimSpace(r.VideoID)
	}
	return render.Job{
		Bucket:        bucket,
		TranscriptKey: strings.TrimSpace(r.TranscriptKey),
		AudioKey:      strings.TrimSpace(r.AudioKey),
		VideoID:       id,
	}
}

// ProcessResponse answers POST /process.
type ProcessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	JobID   string `json:"job_id,omitempty"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JobListResponse answers GET /api/jobs.
type JobListResponse struct {
	Jobs []*queue.Job `json:"jobs"`
}

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	echo   *echo.Echo

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.API.Bind),
		logger: logger.With(logging.String(logging.FieldComponent, "api-server")),
		daemon: d,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = srv.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(maxRequestBody))
	e.Use(srv.requestLogger)

	e.GET("/health", srv.handleHealth)
	e.POST("/process", srv.handleProcess)
	if d.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.metrics.Handler()))
	}

	api := e.Group("/api", authMiddleware(cfg.API.Token))
	api.GET("/status", srv.handleStatus)
	api.GET("/jobs", srv.handleJobs)
	api.GET("/jobs/:id", srv.handleJob)

	srv.echo = e
	srv.server = &http.Server{
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Handler exposes the routes without a listener.
func (d *Daemon) Handler() http.Handler {
	return d.api.echo
}

func (s *apiServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: "synchronized-video-generator",
		Model:   "FLUX.1-dev",
	})
}

func (s *apiServer) handleProcess(c echo.Context) error {
	var req ProcessRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ProcessResponse{Error: "invalid JSON payload"})
	}

	job, _, err := s.daemon.Submit(c.Request().Context(), req.Job())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrValidation) {
			status = http.StatusBadRequest
		}
		s.logger.Warn("render request rejected",
			logging.String(logging.FieldEventType, "process_rejected"),
			logging.Int("status", status),
			logging.Error(err),
		)
		return c.JSON(status, ProcessResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusAccepted, ProcessResponse{
		Success: true,
		Message: "Video generation process started",
		JobID:   job.VideoID,
		Status:  "processing",
	})
}

func (s *apiServer) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.daemon.Status(c.Request().Context()))
}

func (s *apiServer) handleJobs(c echo.Context) error {
	var statuses []queue.Status
	for _, value := range c.QueryParams()["status"] {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, ok := queue.ParseStatus(value)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
		}
		statuses = append(statuses, status)
	}
	jobs, err := s.daemon.ListJobs(c.Request().Context(), statuses...)
	if err != nil {
		return err
	}
	if jobs == nil {
		jobs = []*queue.Job{}
	}
	return c.JSON(http.StatusOK, JobListResponse{Jobs: jobs})
}

func (s *apiServer) handleJob(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid job id")
	}
	job, err := s.daemon.Job(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if job == nil {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	return c.JSON(http.StatusOK, job)
}

// handleError renders every error as {success:false, error}.
func (s *apiServer) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	message := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		message = fmt.Sprint(he.Message)
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("api request failed",
			logging.String("path", c.Path()),
			logging.Error(err),
		)
	}
	if err := c.JSON(code, ProcessResponse{Error: message}); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		s.logger.Debug("http request",
			logging.String("method", c.Request().Method),
			logging.String("path", c.Request().URL.Path),
			logging.Int("status", c.Response().Status),
			logging.Duration("elapsed", time.Since(start)),
		)
		return err
	}
}
