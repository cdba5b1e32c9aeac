package logger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/surgitrack-api/pkg/config"
	"github.com/noah-isme/surgitrack-api/pkg/middleware/requestid"
)

const serviceName = "surgitrack-api"

// New builds the process logger. Every entry carries the service name and environment.
func New(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Env == config.EnvProduction {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Log.Format {
	case "console":
		zapCfg.Encoding = "console"
	default:
		zapCfg.Encoding = "json"
	}

	if cfg.Log.Level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}
	}

	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.InitialFields = map[string]interface{}{"service": serviceName}
	if cfg.Env != "" {
		zapCfg.InitialFields["env"] = cfg.Env
	}

	return zapCfg.Build()
}

// ActorFunc reports who made the request once the handler chain has run.
type ActorFunc func(c *gin.Context) (userID, role string)

// AccessLogOption configures GinMiddleware.
type AccessLogOption func(*accessLog)

type accessLog struct {
	actor ActorFunc
}

// WithActor adds user_id and role fields to every access log entry.
func WithActor(fn ActorFunc) AccessLogOption {
	return func(a *accessLog) {
		a.actor = fn
	}
}

// GinMiddleware writes one entry per request. Paths are logged as route templates since
// raw URLs carry patient codes. Server errors log at Error and client errors at Warn.
func GinMiddleware(l *zap.Logger, opts ...AccessLogOption) gin.HandlerFunc {
	cfg := &accessLog{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if reqID := requestid.Value(c); reqID != "" {
			fields = append(fields, zap.String("request_id", reqID))
		}
		if cfg.actor != nil {
			userID, role := cfg.actor(c)
			if userID != "" {
				fields = append(fields, zap.String("user_id", userID))
			}
			fields = append(fields, zap.String("role", role))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			l.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			l.Warn("http_request", fields...)
		default:
			l.Info("http_request", fields...)
		}
	}
}
