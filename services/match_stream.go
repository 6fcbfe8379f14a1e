package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"battleboats/models"

	"github.com/gofiber/fiber/v2"
)

const keepAliveInterval = 15 * time.Second

// StreamMatchSSE pushes the viewer's view of a match on every committed change.
func (s *MatchService) StreamMatchSSE(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	matchID := c.Params("id")

	// subscribe before the first read so no commit falls between them
	updates, cancel := s.Subscribe(matchID)
	m, err := s.Get(c.UserContext(), matchID, userID)
	if err != nil {
		cancel()
		return err
	}

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	done := c.Context().Done()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		s.streamMatch(w, userID, m, updates, done)
	})

	return nil
}

// streamMatch writes events until the match finishes, is deleted, the
// client goes away or done closes.
func (s *MatchService) streamMatch(w *bufio.Writer, userID string, m *models.Match, updates <-chan *models.Match, done <-chan struct{}) {
	ticker := s.clock.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	lastVersion := int64(-1)
	send := func(m *models.Match) bool {
		if m.Version <= lastVersion {
			return true
		}
		lastVersion = m.Version
		if err := s.writeEvent(w, "match", s.View(m, userID)); err != nil {
			return false
		}
		if m.Status == models.MatchStatusFinished {
			_ = s.writeEvent(w, "finished", fiber.Map{"match_id": m.ID, "winner_id": m.WinnerID})
			return false
		}
		return true
	}

	if !send(m) {
		return
	}

	for {
		select {
		case next, ok := <-updates:
			if !ok {
				_ = s.writeEvent(w, "gone", fiber.Map{"match_id": m.ID})
				return
			}
			if !send(next) {
				return
			}

		case <-ticker.Chan():
			w.WriteString(": keep-alive\n\n")
			if err := w.Flush(); err != nil {
				// Client disconnected
				return
			}

		case <-done:
			return
		}
	}
}

func (s *MatchService) writeEvent(w *bufio.Writer, event string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		s.log.Error("match [StreamMatchSSE] encode", "err", err)
		return err
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return w.Flush()
}
