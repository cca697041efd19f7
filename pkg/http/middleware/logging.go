package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"FinScan/pkg/logger"
)

// RequestLogging logs one line per request at debug level, and at info
// for mutating methods.
func RequestLogging(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("route", c.Path()),
				logger.String("uri", req.RequestURI),
				logger.Int("status", c.Response().Status),
				logger.Duration("latency", time.Since(start)),
				logger.String("remote", c.RealIP()),
			}
			if req.Method == "GET" || req.Method == "HEAD" {
				log.Debug("http request", fields...)
			} else {
				log.Info("http request", fields...)
			}
			return nil
		}
	}
}
