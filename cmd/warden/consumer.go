package main

import (
	"context"
	"time"
)

// Long-poll hold time requested from the Bot API. Must stay under the HTTP
// client's overall deadline (20s in util.RobustHTTPClient), or every idle
// poll gets aborted client-side before the server can answer.
var pollTimeout = 15 * time.Second

// RunConsumer long-polls the Bot API for updates and feeds them to the
// scheduler, resuming from the persisted cursor after a restart.
func (s *Server) RunConsumer(ctx context.Context) error {
	// webhook and long-poll are mutually exclusive on the Bot API side
	if err := s.tg.DeleteWebhook(ctx); err != nil {
		s.logger.Error("failed to clear webhook registration", "err", err)
	}

	cur, err := s.ReadLastCursor(ctx)
	if err != nil {
		return err
	}
	s.lastSeq.Store(cur)
	s.logger.Info("long-poll consumer running", "cursor", cur)

	for {
		if ctx.Err() != nil {
			return s.Shutdown()
		}

		offset := int64(0)
		if seq := s.lastSeq.Load(); seq > 0 {
			offset = seq + 1
		}

		updates, err := s.tg.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return s.Shutdown()
			}
			s.logger.Error("update poll failed, backing off", "err", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return s.Shutdown()
			}
			continue
		}

		for i := range updates {
			if err := s.EnqueueUpdate(ctx, &updates[i]); err != nil {
				return err
			}
		}
	}
}
