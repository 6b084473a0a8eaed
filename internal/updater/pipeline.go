package updater

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/models"
)

// SegmentRefresher rebuilds today's segment of a chat. *segment.Engine satisfies it.
type SegmentRefresher interface {
	UpdateSegmentsForChat(ctx context.Context, chatID int64) (*models.ChatSegment, error)
}

// VectorUpdater recomputes single vectors. *vectorize.Coordinator satisfies it.
type VectorUpdater interface {
	UpdateChatVector(ctx context.Context, chatID int64) error
	UpdateMessageVector(ctx context.Context, messageID int64) error
}

// Pipeline dispatches tasks to the segment engine and the vectorization coordinator.
type Pipeline struct {
	segments SegmentRefresher
	vectors  VectorUpdater
	logger   *zap.Logger
}

// NewPipeline returns a Handler backed by segments and vectors.
func NewPipeline(segments SegmentRefresher, vectors VectorUpdater, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{segments: segments, vectors: vectors, logger: logger}
}

// HandleTask runs t. Segment refreshes embed the segment as part of synthesis.
func (p *Pipeline) HandleTask(ctx context.Context, t Task) error {
	switch t.Kind {
	case KindSegmentRefresh:
		seg, err := p.segments.UpdateSegmentsForChat(ctx, t.EntityID)
		if err != nil {
			return err
		}
		if seg != nil {
			p.logger.Debug("Segment refreshed", zap.Int64("chat_id", t.EntityID),
				zap.Int64("segment_id", seg.ID), zap.Int("messages", seg.MessageCount))
		}
		return nil
	case KindChatVector:
		return p.vectors.UpdateChatVector(ctx, t.EntityID)
	case KindMessageVector:
		return p.vectors.UpdateMessageVector(ctx, t.EntityID)
	default:
		return fmt.Errorf("unknown task kind %q", t.Kind)
	}
}
