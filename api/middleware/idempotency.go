package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/barter-backend/api/responses"
	pkgerrors "github.com/angelmondragon/barter-backend/pkg/errors"
	"github.com/angelmondragon/barter-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/barter-backend/pkg/redis"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	// DefaultIdempotencyTTL covers item listing and trade proposals.
	DefaultIdempotencyTTL = 24 * time.Hour
	// CriticalIdempotencyTTL covers trade acceptance, where a replayed accept
	// must never reach the coordinator twice.
	CriticalIdempotencyTTL = 7 * 24 * time.Hour
)

// storedResponse is what a key resolves to once the first request succeeded.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

type idempotencyGuard struct {
	store pkgredis.IdempotencyStore
	ttl   time.Duration
	logg  *logger.Logger
}

// Idempotency replays the stored response when a request repeats an
// Idempotency-Key on the same method and path. Requests without the header,
// or without a store, pass through. Only responses below 400 are stored so a
// failed or contended request can be retried under the same key.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	g := &idempotencyGuard{store: store, ttl: ttl, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if id == "" || g.store == nil {
				next.ServeHTTP(w, r)
				return
			}
			g.serve(w, r, id, next)
		})
	}
}

func (g *idempotencyGuard) serve(w http.ResponseWriter, r *http.Request, id string, next http.Handler) {
	ctx := r.Context()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])
	key := g.store.IdempotencyKey(r.Method+"|"+r.URL.Path, id)

	prior, err := g.lookup(r, key)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, err)
		return
	}
	if prior != nil {
		if prior.RequestHash != hash {
			responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
			return
		}
		if prior.ContentType != "" {
			w.Header().Set("Content-Type", prior.ContentType)
		}
		w.Header().Set(replayedHeader, "true")
		w.WriteHeader(prior.Status)
		_, _ = w.Write(prior.Body)
		return
	}

	capture := &captureWriter{statusRecorder: statusRecorder{ResponseWriter: w}}
	next.ServeHTTP(capture, r)
	if capture.code() >= http.StatusBadRequest {
		return
	}
	g.remember(r, key, storedResponse{
		Status:      capture.code(),
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.buf.Bytes(),
		RequestHash: hash,
	})
}

func (g *idempotencyGuard) lookup(r *http.Request, key string) (*storedResponse, error) {
	raw, err := g.store.Get(r.Context(), key)
	switch {
	case errors.Is(err, redis.Nil) || (err == nil && raw == ""):
		return nil, nil
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency key")
	}
	var prior storedResponse
	if err := json.Unmarshal([]byte(raw), &prior); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return &prior, nil
}

func (g *idempotencyGuard) remember(r *http.Request, key string, resp storedResponse) {
	payload, err := json.Marshal(resp)
	if err == nil {
		_, err = g.store.SetNX(r.Context(), key, string(payload), g.ttl)
	}
	if err != nil && g.logg != nil {
		g.logg.Error(g.logg.WithField(r.Context(), "idempotency_key", key), "store idempotency record", err)
	}
}

// captureWriter tees the response body so it can be stored for replay.
type captureWriter struct {
	statusRecorder
	buf bytes.Buffer
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.buf.Write(b)
	return c.statusRecorder.Write(b)
}
