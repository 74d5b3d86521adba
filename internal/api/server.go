// Package api is the request-response glue around the fan-out core: room
// and user reads, room create-or-get, and the websocket mount points.
package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-chat/internal/channel"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/store"
	"github.com/fathima-sithara/realtime-chat/internal/ws"
)

type Server struct {
	store store.Store
	pres  *presence.Store
	log   *zap.SugaredLogger
}

func New(st store.Store, gw *ws.Gateway, pres *presence.Store, log *zap.SugaredLogger) *fiber.App {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{store: st, pres: pres, log: log}

	api := app.Group("/api/v1")
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	api.Post("/rooms", s.createOrGetRoom)
	api.Get("/rooms", s.listRooms)
	api.Get("/rooms/:room/messages", s.roomMessages)
	api.Get("/users/search", s.searchUsers)
	api.Get("/dms/conversation", s.conversation)
	api.Get("/presence/:username", s.presenceStatus)

	app.Get("/ws/group/:room", gw.UpgradeGroup, gw.Group())
	app.Get("/ws/dm/:username", gw.UpgradeDirect, gw.Direct())

	return app
}

func (s *Server) createOrGetRoom(c *fiber.Ctx) error {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}
	if _, err := channel.Group(req.Name); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "room name is required"})
	}
	room, err := s.store.EnsureRoom(c.Context(), req.Name, req.Description)
	if err != nil {
		s.log.Errorw("room upsert failed", "room", req.Name, "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	return c.JSON(room)
}

func (s *Server) listRooms(c *fiber.Ctx) error {
	rooms, err := s.store.ListRooms(c.Context())
	if err != nil {
		s.log.Errorw("room list failed", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	return c.JSON(fiber.Map{"rooms": rooms})
}

func (s *Server) roomMessages(c *fiber.Ctx) error {
	room := c.Params("room")
	msgs, err := s.store.RoomMessages(c.Context(), room)
	if err != nil {
		if err == store.ErrNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "room not found"})
		}
		s.log.Errorw("room messages failed", "room", room, "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

func (s *Server) searchUsers(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		return c.JSON(fiber.Map{"users": []store.User{}})
	}
	users, err := s.store.SearchUsers(c.Context(), q, 20)
	if err != nil {
		s.log.Errorw("user search failed", "q", q, "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	return c.JSON(fiber.Map{"users": users})
}

func (s *Server) conversation(c *fiber.Ctx) error {
	user1, user2 := c.Query("user1"), c.Query("user2")
	if user1 == "" || user2 == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "both user1 and user2 parameters required"})
	}
	msgs, err := s.store.FetchDirectHistory(c.Context(), user1, user2, 0)
	if err != nil {
		s.log.Errorw("conversation fetch failed", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

func (s *Server) presenceStatus(c *fiber.Ctx) error {
	username := c.Params("username")
	online := s.pres != nil && s.pres.IsOnline(c.Context(), username)
	return c.JSON(fiber.Map{"username": username, "online": online})
}
