package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/smgpctl/internal/auth"
	"github.com/danmuck/smgpctl/internal/gateway"
	"github.com/danmuck/smgpctl/internal/observability"
	"github.com/danmuck/smgpctl/internal/protocol"
	"github.com/danmuck/smgpctl/internal/protocol/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	nodeName        = "smgpctl-admin"
	version         = "0.1.0"
	requestIDHeader = "X-Request-ID"
	shutdownTimeout = 5 * time.Second
)

// Gateways is the slice of gateway.Manager the API drives.
type Gateways interface {
	Status() []gateway.Status
	StatusOf(name string) (gateway.Status, error)
	Submit(ctx context.Context, name string, req protocol.SubmitRequest) ([]uint32, error)
}

// Options configures the admin API.
type Options struct {
	Addr        string
	CorsOrigins []string
	// Token, when set, is required as a bearer token on /gateways routes.
	Token    string
	Gateways Gateways
}

// Server is the HTTP admin surface: health, gateway status, submit and
// metrics.
type Server struct {
	Addr     string
	Appeared time.Time

	gateways Gateways
	guard    auth.Validator
	router   *gin.Engine
}

func New(opts Options) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, requestIDHeader))
	r.Use(observability.RequestMetricsMiddleware(nodeName))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Addr:     opts.Addr,
		Appeared: time.Now(),
		gateways: opts.Gateways,
		router:   r,
	}
	if opts.Token != "" {
		s.guard = auth.StaticToken{Token: opts.Token}
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve listens on Addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Addr).Msg("admin.Server.Serve listening")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": nodeName,
			"version": version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		connected := 0
		statuses := s.gateways.Status()
		for _, st := range statuses {
			if st.Connected {
				connected++
			}
		}
		code := http.StatusOK
		if connected == 0 {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":     connected > 0,
			"connected": connected,
			"gateways":  len(statuses),
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	gateways := s.router.Group("/gateways", auth.RequireToken(s.guard))
	gateways.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"gateways": s.gateways.Status()})
	})

	gateways.GET("/:name", func(c *gin.Context) {
		st, err := s.gateways.StatusOf(c.Param("name"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, st)
	})

	gateways.POST("/:name/submit", s.handleSubmit)
}

// SubmitBody is the JSON accepted by POST /gateways/:name/submit.
type SubmitBody struct {
	DestTermIDs []string `json:"dest_term_ids" binding:"required,min=1,dive,required"`
	Text        string   `json:"text" binding:"required"`
	// Format is ascii (default), ucs2, gbk or binary.
	Format     string `json:"format"`
	NeedReport bool   `json:"need_report"`
	Priority   uint8  `json:"priority"`
	ServiceID  string `json:"service_id"`
	SrcTermID  string `json:"src_term_id"`
}

// SubmitResult is the JSON returned for an accepted submit.
type SubmitResult struct {
	RequestID   string   `json:"request_id"`
	Gateway     string   `json:"gateway"`
	SequenceIDs []uint32 `json:"sequence_ids"`
	Segments    int      `json:"segments"`
}

func (s *Server) handleSubmit(c *gin.Context) {
	requestID := requestIDFrom(c)
	c.Header(requestIDHeader, requestID)
	name := c.Param("name")

	var body SubmitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "request_id": requestID})
		return
	}
	format, err := protocol.ParseFormat(body.Format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "request_id": requestID})
		return
	}

	seqs, err := s.gateways.Submit(c.Request.Context(), name, protocol.SubmitRequest{
		NeedReport:  body.NeedReport,
		Priority:    body.Priority,
		ServiceID:   body.ServiceID,
		MsgFormat:   format,
		SrcTermID:   body.SrcTermID,
		DestTermIDs: body.DestTermIDs,
		Text:        body.Text,
	})
	if err != nil {
		status := submitErrorStatus(err)
		log.Warn().
			Err(err).
			Str("request_id", requestID).
			Str("gateway", name).
			Int("status", status).
			Msg("admin.Server.handleSubmit failed")
		c.JSON(status, gin.H{"error": err.Error(), "request_id": requestID, "sequence_ids": seqs})
		return
	}

	log.Info().
		Str("request_id", requestID).
		Str("gateway", name).
		Int("segments", len(seqs)).
		Msg("admin.Server.handleSubmit accepted")
	c.JSON(http.StatusAccepted, SubmitResult{
		RequestID:   requestID,
		Gateway:     name,
		SequenceIDs: seqs,
		Segments:    len(seqs),
	})
}

func submitErrorStatus(err error) int {
	switch {
	case errors.Is(err, gateway.ErrUnknownGateway):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrInvalidField), errors.Is(err, protocol.ErrFieldTooLong):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSendExhausted), errors.Is(err, session.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// requestIDFrom keeps a caller-supplied UUID and mints one otherwise.
func requestIDFrom(c *gin.Context) string {
	if raw := strings.TrimSpace(c.GetHeader(requestIDHeader)); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return id.String()
		}
	}
	return uuid.NewString()
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
