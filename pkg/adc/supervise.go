package adc

import (
	"context"
	"log/slog"
	"time"
)

// DefaultReconnectInterval is the default wait between reopen attempts.
const DefaultReconnectInterval = 2 * time.Second

// KeepConnected reopens dev whenever it reports disconnected, checking every
// interval, until ctx is cancelled.
func KeepConnected(ctx context.Context, dev Device, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "adc")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if dev.IsConnected() {
			continue
		}
		if err := dev.Connect(); err != nil {
			if !failing {
				log.Warn("bridge reconnect failed, retrying", "err", err, "interval", interval)
			}
			failing = true
			continue
		}
		failing = false
		log.Info("bridge reconnected")
	}
}
