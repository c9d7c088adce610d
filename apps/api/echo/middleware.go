package echoapi

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/attendly/core"
	cachesvc "github.com/trezcool/attendly/services/cache"
)

// roleMiddleware lets through the users whose token carries any of roles.
func roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.HasAnyRole(roles...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// rateLimitMiddleware applies a token bucket per client IP & route.
func rateLimitMiddleware(cache *cachesvc.Client, logger core.Logger, capacity int, interval time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !cache.Enabled() {
				return next(ctx)
			}
			key := ctx.Request().Method + " " + ctx.Path() + ":" + ctx.RealIP()
			dec, err := cache.Take(ctx.Request().Context(), key, capacity, interval)
			if err != nil {
				logger.Warn("rate limiter unavailable", err)
			}

			header := ctx.Response().Header()
			header.Set("X-RateLimit-Limit", strconv.Itoa(capacity))
			header.Set("X-RateLimit-Remaining", strconv.FormatInt(dec.Remaining, 10))
			if !dec.Allowed {
				secs := int(math.Ceil(dec.RetryAfter.Seconds()))
				header.Set(echo.HeaderRetryAfter, strconv.Itoa(secs))
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}

// captureWriter keeps a copy of the body written to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	cw.buf.Write(b)
	return cw.ResponseWriter.Write(b)
}

func schoolScope(schoolID string) string { return "school:" + schoolID }

// cacheMiddleware serves the GET responses of the school from redis until the school data changes.
// Anonymous requests share the "public" scope.
func cacheMiddleware(cache *cachesvc.Client, logger core.Logger, ttl time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			if !cache.Enabled() || req.Method != http.MethodGet {
				return next(ctx)
			}

			scope := "public"
			if claims, err := getContextClaims(ctx); err == nil {
				scope = schoolScope(claims.SchoolID)
			}
			gen, err := cache.Generation(req.Context(), scope)
			if err != nil {
				logger.Warn("response cache unavailable", err)
				return next(ctx)
			}
			sum := sha1.Sum([]byte(req.URL.Path + "?" + req.URL.RawQuery))
			key := fmt.Sprintf("%s:%d:%x", scope, gen, sum)

			if body, ok, err := cache.Get(req.Context(), key); err == nil && ok {
				ctx.Response().Header().Set("X-Cache", "HIT")
				return ctx.JSONBlob(http.StatusOK, body)
			}

			cw := &captureWriter{ResponseWriter: ctx.Response().Writer, status: http.StatusOK}
			ctx.Response().Writer = cw
			ctx.Response().Header().Set("X-Cache", "MISS")
			if err := next(ctx); err != nil {
				return err
			}
			if cw.status == http.StatusOK {
				if err := cache.Set(req.Context(), key, cw.buf.Bytes(), ttl); err != nil {
					logger.Warn("caching response", err)
				}
			}
			return nil
		}
	}
}

// invalidateMiddleware drops the cached responses of the school after every successful mutation.
func invalidateMiddleware(cache *cachesvc.Client, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			err := next(ctx)
			if err != nil || ctx.Request().Method == http.MethodGet || !cache.Enabled() {
				return err
			}
			if ctx.Response().Status >= http.StatusBadRequest {
				return nil
			}
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				if bErr := cache.Bump(ctx.Request().Context(), schoolScope(claims.SchoolID)); bErr != nil {
					logger.Warn("invalidating response cache", bErr)
				}
			}
			return nil
		}
	}
}
