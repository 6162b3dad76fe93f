// Package httpserver exposes the relay over HTTP.
//
// Routes:
//
//	POST {endpoint}       notification intake (only when enabled)
//	GET  /healthz         liveness
//	GET  /debug/pprof/*   profiling (optional, bearer token)
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tgnotify/internal/relay"
	"tgnotify/pkg/logx"
)

const (
	DefaultEndpoint = "/api/telegram-notify"
	RequestIDHeader = "X-Request-ID"
)

// Dispatcher is the relay pipeline as seen by the HTTP layer.
type Dispatcher interface {
	Dispatch(ctx context.Context, req relay.Request, source string) (relay.Result, error)
	Configured() bool
}

type RouterConfig struct {
	// Enabled registers the notification endpoint.
	Enabled      bool
	EndpointPath string
	// TrustedProxies limits whose X-Forwarded-For is honored (empty trusts all).
	TrustedProxies []string
	Pprof          PprofConfig
}

type PprofConfig struct {
	Enabled bool
	Token   string
}

// HealthFunc adds fields to the /healthz response.
type HealthFunc func() map[string]any

// NewRouter wires the relay endpoint, health check and optional pprof handlers.
func NewRouter(cfg RouterConfig, d Dispatcher, log logx.Logger, health HealthFunc) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	if log.IsZero() {
		log = logx.Nop()
	}

	r := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			return nil, err
		}
	}
	r.Use(requestID(), recovery(log), accessLog(log))

	r.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if health != nil {
			for k, v := range health() {
				body[k] = v
			}
		}
		c.JSON(http.StatusOK, body)
	})

	if cfg.Enabled {
		r.POST(EndpointPath(cfg.EndpointPath), notifyHandler(d))
	}
	if cfg.Pprof.Enabled {
		registerPprof(r, cfg.Pprof.Token)
	}
	return r, nil
}

// EndpointPath normalizes a configured path ("" means DefaultEndpoint).
func EndpointPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return DefaultEndpoint
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// MaxBodyBytes caps a notify request body. The rendered message is clipped
// far below this anyway.
const MaxBodyBytes = 64 << 10

func notifyHandler(d Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

		var req relay.Request
		// An unconfigured relay reports that first, whatever the body.
		if err := c.ShouldBindJSON(&req); err != nil && d.Configured() {
			msg := "invalid JSON body: " + err.Error()
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				msg = fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit)
			}
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": msg})
			return
		}

		res, err := d.Dispatch(c.Request.Context(), req, c.ClientIP())
		if err != nil {
			var re *relay.Error
			if errors.As(err, &re) {
				setRateHeaders(c, re.Rate)
				if re.RetryAfter > 0 {
					c.Header("Retry-After", strconv.FormatInt(int64(re.RetryAfter/time.Second), 10))
				}
			}
			c.JSON(statusFor(err), gin.H{"ok": false, "error": err.Error()})
			return
		}

		setRateHeaders(c, res.Rate)
		if res.Deduplicated {
			c.JSON(http.StatusOK, gin.H{"ok": true, "deduplicated": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "telegram": res.Provider})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, relay.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, relay.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, relay.ErrDeliveryFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func setRateHeaders(c *gin.Context, r *relay.RateInfo) {
	if r == nil {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(r.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(r.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(r.ResetAt.Unix(), 10))
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func recovery(log logx.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		log.Error("handler panicked", logx.Any("panic", rec), logx.String("path", c.Request.URL.Path), logx.String("request_id", c.GetString("request_id")))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
	})
}

func accessLog(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.FullPath()),
			logx.Int("status", c.Writer.Status()),
			logx.String("client_ip", c.ClientIP()),
			logx.String("request_id", c.GetString("request_id")),
			logx.Duration("latency", time.Since(start)),
		)
	}
}
