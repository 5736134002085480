package ws

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/cory-johannsen/mimic/internal/game/room"
)

type statusRequest struct {
	RoomID string `validate:"len=8,alpha,uppercase"`
}

// RoomStatus is the body of GET /api/rooms/:id/status.
type RoomStatus struct {
	RoomID       string   `json:"roomId"`
	Participants []string `json:"participants"`
	GameState    string   `json:"gameState"`
	CurrentTurn  string   `json:"currentTurn,omitempty"`
	Timer        int      `json:"timer"`
	Rounds       int      `json:"rounds"`
}

func newRoomStatus(r *room.Room) RoomStatus {
	return RoomStatus{
		RoomID:       r.ID,
		Participants: r.Participants,
		GameState:    string(r.GameState),
		CurrentTurn:  r.CurrentTurn,
		Timer:        r.Timer,
		Rounds:       r.Rounds,
	}
}

// handleCreateRoom creates an empty room for a client that will join it
// over the socket.
func (s *Server) handleCreateRoom(c *fiber.Ctx) error {
	r, err := s.rooms.CreateRoom(c.UserContext())
	if err != nil {
		s.logger.Error("creating room over http", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal error"})
	}
	return c.JSON(fiber.Map{"message": "Room created", "roomId": r.ID})
}

// handleRoomStatus reports a room's members and state. The symbol is never
// included.
func (s *Server) handleRoomStatus(c *fiber.Ctx) error {
	req := statusRequest{RoomID: c.Params("id")}
	if err := s.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Room does not exist"})
	}

	r, err := s.rooms.Room(c.UserContext(), req.RoomID)
	if errors.Is(err, room.ErrRoomNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Room does not exist"})
	}
	if err != nil {
		s.logger.Error("loading room status",
			zap.String("room_id", req.RoomID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal error"})
	}
	return c.JSON(newRoomStatus(r))
}
