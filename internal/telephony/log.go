package telephony

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogProvider places no real calls. It logs the request and returns a
// synthetic call id, which makes the webhook flow drivable by hand.
type LogProvider struct {
	Logger *zap.Logger
}

func (p LogProvider) PlaceCall(_ context.Context, req CallRequest) (string, error) {
	callID := "LOG" + uuid.NewString()
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("call placed (log provider)",
		zap.String("call_id", callID),
		zap.String("to", req.To),
		zap.String("from", req.From),
		zap.String("turn_url", req.TurnURL),
		zap.String("status_callback", req.StatusCallbackURL),
		zap.String("markup", req.Markup),
	)
	return callID, nil
}
