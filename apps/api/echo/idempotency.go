package echoapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/services/idempotency"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 255

	// bounds the key bookkeeping done once the request context may already be gone
	idempotencyStoreTimeout = 5 * time.Second
)

var (
	errIdempotencyKeyTooLong = echo.NewHTTPError(http.StatusBadRequest, "Idempotency-Key is too long")
	errIdempotencyMismatch   = echo.NewHTTPError(http.StatusUnprocessableEntity, "Idempotency-Key was already used with a different request body")
	errIdempotencyInFlight   = echo.NewHTTPError(http.StatusConflict, "a request with this Idempotency-Key is still being processed")
)

// responseRecorder copies everything written to the response.
type responseRecorder struct {
	http.ResponseWriter
	body bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// newIdempotencyMiddleware replays the stored response of requests retried with the same Idempotency-Key.
// Keys are scoped to the token subject. 5xx responses are not kept, so those requests can be retried.
func newIdempotencyMiddleware(store idempotency.Store, ttl time.Duration, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			key := strings.TrimSpace(ctx.Request().Header.Get(headerIdempotencyKey))
			if key == "" || store == nil {
				return next(ctx)
			}
			if len(key) > maxIdempotencyKeyLen {
				return errIdempotencyKeyTooLong
			}

			req := ctx.Request()
			body, err := io.ReadAll(req.Body)
			if err != nil {
				return errors.Wrap(err, "reading request body")
			}
			req.Body = io.NopCloser(bytes.NewReader(body))

			storeKey := contextActor(ctx).ID + ":" + key
			bodyHash := idempotency.HashBody(body)

			rec, reserved, err := store.Reserve(req.Context(), storeKey, bodyHash, ttl)
			if err != nil {
				return errors.Wrap(err, "reserving idempotency key")
			}
			if !reserved {
				switch {
				case rec.BodyHash != bodyHash:
					return errIdempotencyMismatch
				case rec.InFlight():
					return errIdempotencyInFlight
				}
				ctx.Response().Header().Set(headerReplayed, "true")
				return ctx.Blob(rec.Status, rec.ContentType, rec.Body)
			}

			res := ctx.Response()
			recorder := &responseRecorder{ResponseWriter: res.Writer}
			res.Writer = recorder

			if err = next(ctx); err != nil {
				ctx.Error(err) // writes the error response, so that it is recorded too
			}
			res.Writer = recorder.ResponseWriter

			// the client may have gone away, the outcome must still be recorded
			storeCtx, cancel := context.WithTimeout(context.WithoutCancel(req.Context()), idempotencyStoreTimeout)
			defer cancel()

			if res.Status >= http.StatusInternalServerError || !res.Committed {
				if rErr := store.Release(storeCtx, storeKey); rErr != nil {
					logger.Error("releasing idempotency key", rErr, contextActor(ctx))
				}
				return nil
			}

			err = store.Complete(storeCtx, storeKey, idempotency.Record{
				BodyHash:    bodyHash,
				Status:      res.Status,
				ContentType: res.Header().Get(echo.HeaderContentType),
				Body:        recorder.body.Bytes(),
			}, ttl)
			if err != nil {
				logger.Error("storing idempotent response", err, contextActor(ctx))
			}
			return nil
		}
	}
}
