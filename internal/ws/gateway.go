package ws

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-chat/internal/auth"
	"github.com/fathima-sithara/realtime-chat/internal/channel"
)

// Gateway mounts the two websocket endpoints:
//
//	GET /ws/group/:room        ?user=<name>  ?token=<jwt>
//	GET /ws/dm/:username       ?user=<name>  ?token=<jwt>
//
// A validated token overrides the user query parameter as the connection
// identity.
type Gateway struct {
	deps      Deps
	validator *auth.Validator
	log       *zap.SugaredLogger
}

func NewGateway(deps Deps, validator *auth.Validator) *Gateway {
	return &Gateway{deps: deps, validator: validator, log: deps.Log}
}

// UpgradeGroup rejects a bad group handshake before the upgrade, so an
// invalid room never touches the registry.
func (g *Gateway) UpgradeGroup(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if _, err := channel.Group(c.Params("room")); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.Next()
}

// UpgradeDirect rejects a bad direct handshake before the upgrade.
func (g *Gateway) UpgradeDirect(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	current := c.Query("user")
	if current == "" {
		current = anonymousUser
	}
	if _, err := channel.Direct(current, c.Params("username")); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.Next()
}

// Group handles upgraded group-chat sockets.
func (g *Gateway) Group() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		room := conn.Params("room")
		identity := g.identity(conn)
		sess, err := NewGroupSession(conn, room, identity, g.deps)
		if err != nil {
			g.log.Infow("group handshake rejected", "room", room, "err", err)
			_ = conn.Close()
			return
		}
		g.log.Infow("connected", "channel", sess.ChannelID(), "user", sess.identity)
		sess.Run(context.Background())
		g.log.Infow("disconnected", "channel", sess.ChannelID(), "user", sess.identity)
	})
}

// Direct handles upgraded direct-message sockets.
func (g *Gateway) Direct() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		recipient := conn.Params("username")
		identity := g.identity(conn)
		sess, err := NewDirectSession(conn, identity, recipient, g.deps)
		if err != nil {
			g.log.Infow("dm handshake rejected", "recipient", recipient, "err", err)
			_ = conn.Close()
			return
		}
		g.log.Infow("connected", "channel", sess.ChannelID(), "user", sess.identity)
		sess.Run(context.Background())
		g.log.Infow("disconnected", "channel", sess.ChannelID(), "user", sess.identity)
	})
}

func (g *Gateway) identity(conn *websocket.Conn) string {
	if g.validator != nil {
		if token := conn.Query("token"); token != "" {
			if name, err := g.validator.Validate(token); err == nil {
				return name
			}
			g.log.Debugw("token rejected, falling back to query identity")
		}
	}
	return conn.Query("user")
}
