package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"watchalong/internal/coordinator"
	"watchalong/internal/protocol"
)

// NewUpgrader returns the websocket upgrader shared by the viewer endpoints.
// Viewers are served from arbitrary pages, so any Origin header is accepted.
func NewUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
}

// Hub terminates viewer connections and turns their messages into
// coordinator calls. Real-time actions that fail validation are dropped.
type Hub struct {
	relay    *Relay
	log      *slog.Logger
	upgrader websocket.Upgrader
	validate *validator.Validate
}

// NewHub returns a session hub for r.
func NewHub(r *Relay, upgrader websocket.Upgrader) *Hub {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return &Hub{
		relay:    r,
		log:      r.log.With("component", "hub"),
		upgrader: upgrader,
		validate: v,
	}
}

// ServeHTTP upgrades a viewer connection and serves it until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("viewer upgrade failed", slog.Any("error", err))
		return
	}
	c := newConn(ws, h.log)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go c.writePump()
	c.readPump(func(frame []byte) { h.dispatch(ctx, c, frame) })

	h.disconnect(c)
	c.closeSend()
}

func (h *Hub) dispatch(ctx context.Context, c *Conn, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		c.log.Debug("dropping malformed frame", slog.Any("error", err))
		return
	}

	switch env.Type {
	case protocol.TypeLogin:
		var msg protocol.Login
		if err := env.Unmarshal(&msg); err != nil {
			c.log.Debug("malformed login", slog.Any("error", err))
			c.Send(protocol.MustEncode(protocol.TypeLoginError, protocol.LoginError{Message: ErrLoginMalformed.Error()}))
			return
		}
		if err := h.Login(ctx, c, msg); err != nil {
			c.Send(protocol.MustEncode(protocol.TypeLoginError, protocol.LoginError{Message: err.Error()}))
		}

	case protocol.TypeReportState:
		var msg protocol.ReportState
		if env.Unmarshal(&msg) != nil || !msg.BufferState.Valid() {
			return
		}
		if o, ok := h.viewerOrigin(c, msg.OriginID); ok {
			o.coord.ReportViewerState(c.id, msg.ItemID, msg.IsPlaying, msg.SeekPosition, msg.BufferState)
		}

	case protocol.TypePlayback:
		var msg protocol.Playback
		if env.Unmarshal(&msg) != nil {
			return
		}
		if o, ok := h.viewerOrigin(c, msg.OriginID); ok {
			applyPlayback(o.coord, msg)
		}

	case protocol.TypeSetQueue:
		var msg protocol.SetQueue
		if env.Unmarshal(&msg) != nil {
			return
		}
		if o, ok := h.viewerOrigin(c, msg.OriginID); ok {
			o.coord.SetQueue(msg.Items, msg.ResetPlayback)
		}

	case protocol.TypeDownloadReq:
		var msg protocol.DownloadMedia
		if env.Unmarshal(&msg) != nil || strings.TrimSpace(msg.URL) == "" {
			return
		}
		if o, ok := h.viewerOrigin(c, msg.OriginID); ok {
			if err := o.link.Download(strings.TrimSpace(msg.URL)); err != nil {
				c.log.Warn("forwarding download failed", slog.String("origin", o.Name), slog.Any("error", err))
			}
		}

	default:
		c.log.Debug("dropping unknown message", slog.String("type", env.Type))
	}
}

// applyPlayback maps an opcode and its text operand onto the coordinator.
// Operands that do not parse are ignored.
func applyPlayback(coord *coordinator.Coordinator, msg protocol.Playback) {
	switch msg.Op {
	case protocol.OpPlayPause:
		switch msg.Operand {
		case "play":
			coord.SetPlayPause(true)
		case "pause":
			coord.SetPlayPause(false)
		}
	case protocol.OpSeek:
		if secs, err := strconv.Atoi(strings.TrimSpace(msg.Operand)); err == nil {
			coord.Seek(secs)
		}
	}
}

// Login authenticates c against an origin and admits it as a viewer.
func (h *Hub) Login(ctx context.Context, c *Conn, msg protocol.Login) (err error) {
	defer func() {
		h.relay.opts.Metrics.IncLogin(loginResult(err))
		if err != nil {
			c.log.Info("login rejected", slog.Int64("origin_id", msg.OriginID), slog.String("username", msg.Username), slog.String("reason", err.Error()))
		}
	}()

	if current, _ := c.Origin(); current != 0 {
		return ErrAlreadyLoggedIn
	}
	o, ok := h.relay.registry.Get(msg.OriginID)
	if !ok {
		return ErrOriginNotFound
	}
	if err := h.validateName(msg); err != nil {
		return err
	}
	if !o.CheckPassword(msg.Password) {
		return ErrBadPassword
	}
	if o.coord.NameTaken(msg.Username) {
		return ErrNameInUse
	}

	actx, cancel := context.WithTimeout(ctx, h.relay.opts.ApprovalTimeout)
	defer cancel()
	approval, err := o.link.ApproveViewer(actx, msg.Username)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJoinRejected, err)
	}
	if !approval.Accept {
		if approval.Reason != "" {
			return fmt.Errorf("%w: %s", ErrJoinRejected, approval.Reason)
		}
		return ErrJoinRejected
	}

	// The origin may have gone away while approval was pending.
	if _, ok := h.relay.registry.Get(o.ID); !ok {
		return ErrOriginNotFound
	}

	c.attach(o.ID, msg.Username)
	c.Send(protocol.MustEncode(protocol.TypeLoginAccept, protocol.LoginAccept{OriginID: o.ID}))
	if !o.room.add(c) {
		h.abandon(c, o)
		return ErrOriginNotFound
	}
	if err := o.coord.AddViewer(c.id, msg.Username); err != nil {
		o.room.remove(c)
		h.abandon(c, o)
		switch {
		case errors.Is(err, coordinator.ErrNameInUse):
			return ErrNameInUse
		case errors.Is(err, coordinator.ErrClosed):
			return ErrOriginNotFound
		}
		return err
	}
	c.log.Info("viewer admitted", slog.Int64("origin_id", o.ID), slog.String("username", msg.Username))
	h.relay.publish()
	return nil
}

// abandon undoes an admission that failed after login_accept went out. The
// closed frame is sent only if teardown has not already sent it.
func (h *Hub) abandon(c *Conn, o *Origin) {
	if c.detach(o.ID) {
		c.Send(protocol.MustEncode(protocol.TypeClosed, struct{}{}))
	}
}

func (h *Hub) validateName(msg protocol.Login) error {
	err := h.validate.Struct(msg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() != "Username" {
				continue
			}
			if fe.Tag() == "max" {
				return ErrNameTooLong
			}
			return ErrNameBlank
		}
	}
	return ErrNameInvalid
}

// viewerOrigin returns the origin c is admitted to, provided it is originID.
func (h *Hub) viewerOrigin(c *Conn, originID int64) (*Origin, bool) {
	current, _ := c.Origin()
	if current == 0 || current != originID {
		return nil, false
	}
	return h.relay.registry.Get(current)
}

// disconnect removes c from whatever origin it joined. A connection that never
// logged in, or whose origin already went away, is ignored.
func (h *Hub) disconnect(c *Conn) {
	current, _ := c.Origin()
	if current == 0 {
		return
	}
	c.detach(current)
	o, ok := h.relay.registry.Get(current)
	if !ok {
		return
	}
	o.room.remove(c)
	if o.coord.RemoveViewer(c.id) {
		h.relay.publish()
	}
}
