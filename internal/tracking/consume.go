package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var ErrMalformedMessage = errors.New("malformed fix message")

// FixBatch is the broker representation of device traffic. Action is one of
// "start", "fixes" (default) or "stop".
type FixBatch struct {
	UserID int64  `json:"userID"`
	Action string `json:"action"`
	Fixes  []Fix  `json:"fixes"`
}

// HandleMessage applies one broker message. Errors are terminal for the message.
func (m *Manager) HandleMessage(ctx context.Context, body []byte) error {
	var batch FixBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if batch.UserID <= 0 {
		return fmt.Errorf("%w: missing userID", ErrMalformedMessage)
	}

	switch batch.Action {
	case "start":
		_, err := m.Start(batch.UserID)
		return err
	case "stop":
		result, err := m.Stop(ctx, batch.UserID)
		if err != nil {
			return err
		}
		m.logger.Info("trip scored from broker stop",
			zap.Int64("user_id", batch.UserID),
			zap.Int("score", result.Score),
		)
		return nil
	case "", "fixes":
		_, err := m.AddFixes(ctx, batch.UserID, batch.Fixes)
		return err
	default:
		return fmt.Errorf("%w: unknown action %q", ErrMalformedMessage, batch.Action)
	}
}
