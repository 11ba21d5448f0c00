package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/dnldd/breakout/shared"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
)

const (
	// maxPayloadSize is the maximum accepted update payload size.
	maxPayloadSize = 1 << 16
	// shutdownTimeout is the deadline for draining the webhook server.
	shutdownTimeout = time.Second * 5
)

// WebhookConfig represents the configuration for the webhook.
type WebhookConfig struct {
	// Address is the listen address.
	Address string
	// Path is the update route.
	Path string
	// OperatorID is the identity authorized to issue commands.
	OperatorID string
	// Dispatch applies the provided command.
	Dispatch func(cmd shared.Command) error
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *WebhookConfig) Validate() error {
	var errs error

	if cfg.Address == "" {
		errs = errors.Join(errs, fmt.Errorf("no webhook address provided"))
	}
	if cfg.Path == "" || cfg.Path[0] != '/' {
		errs = errors.Join(errs, fmt.Errorf("webhook path must start with '/'"))
	}
	if cfg.OperatorID == "" {
		errs = errors.Join(errs, fmt.Errorf("no operator id provided"))
	}
	if cfg.Dispatch == nil {
		errs = errors.Join(errs, fmt.Errorf("no dispatch function provided"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("no logger provided"))
	}

	return errs
}

// Webhook receives pushed bot updates.
type Webhook struct {
	cfg        *WebhookConfig
	echo       *echo.Echo
	lastUpdate atomic.Int64
}

// NewWebhook initializes a new webhook.
func NewWebhook(cfg *WebhookConfig) (*Webhook, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating webhook config: %w", err)
	}

	w := &Webhook{
		cfg:  cfg,
		echo: echo.New(),
	}

	w.echo.HideBanner = true
	w.echo.HidePort = true
	w.echo.Use(w.recoverer())
	w.echo.POST(cfg.Path, w.handleUpdate)

	return w, nil
}

// recoverer returns middleware that turns handler panics into server errors.
func (w *Webhook) recoverer() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if r := recover(); r != nil {
					w.cfg.Logger.Error().Msgf("webhook panic: %v\n%s", r, debug.Stack())
					_ = c.String(http.StatusInternalServerError, "internal error")
				}
			}()
			return next(c)
		}
	}
}

// fresh checks whether the provided update id is newer than every seen update,
// recording it if so.
func (w *Webhook) fresh(id int64) bool {
	for {
		last := w.lastUpdate.Load()
		if id <= last {
			return false
		}
		if w.lastUpdate.CompareAndSwap(last, id) {
			return true
		}
	}
}

// handleUpdate processes a pushed update.
func (w *Webhook) handleUpdate(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPayloadSize))
	if err != nil || !gjson.ValidBytes(body) {
		return c.String(http.StatusBadRequest, "bad request")
	}

	chat := gjson.GetBytes(body, "message.chat.id")
	text := gjson.GetBytes(body, "message.text")
	if !chat.Exists() || !text.Exists() {
		// Updates without a text message carry no command.
		return c.String(http.StatusOK, "ok")
	}

	// Foreign updates must not advance the update cursor.
	identity := strconv.FormatInt(chat.Int(), 10)
	if identity != w.cfg.OperatorID {
		w.cfg.Logger.Warn().Msgf("rejected update from unauthorized chat %s", identity)
		return c.String(http.StatusForbidden, "unauthorized")
	}

	var cursor int64
	if id := gjson.GetBytes(body, "update_id"); id.Exists() {
		cursor = id.Int()
		if !w.fresh(cursor) {
			w.cfg.Logger.Debug().Msgf("ignoring stale update %d", cursor)
			return c.String(http.StatusOK, "ok")
		}
	}

	cmd := shared.NewCommand(text.String(), identity, cursor)
	err = w.cfg.Dispatch(cmd)
	if errors.Is(err, ErrUnauthorized) {
		return c.String(http.StatusForbidden, "unauthorized")
	}

	return c.String(http.StatusOK, "ok")
}

// ServeHTTP serves webhook requests.
func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.echo.ServeHTTP(rw, r)
}

// Run serves the webhook until the context is cancelled.
func (w *Webhook) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := w.echo.Shutdown(shutdownCtx); err != nil {
			w.cfg.Logger.Error().Err(err).Msgf("shutting down webhook")
		}
	}()

	w.cfg.Logger.Info().Msgf("webhook listening on %s%s", w.cfg.Address, w.cfg.Path)

	err := w.echo.Start(w.cfg.Address)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving webhook: %w", err)
	}

	return nil
}
