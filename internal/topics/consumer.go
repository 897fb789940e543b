package topics

import (
	"context"
	"errors"

	"github.com/umbusk1/bibliofep/internal/ingestion"
	apperrors "github.com/umbusk1/bibliofep/pkg/errors"
	"github.com/umbusk1/bibliofep/pkg/kafka"
	"github.com/umbusk1/bibliofep/pkg/logger"
)

// IngestHandler returns a Kafka message handler that labels the
// conversations announced by each ConversationsIngested event.
func IngestHandler(a Analyzer) kafka.MessageHandler {
	log := logger.WithComponent("ingest-labeller")
	return func(ctx context.Context, key, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.ConversationsIngested](value)
		if err != nil {
			// Undecodable events will never succeed; drop them.
			log.Error("skipping malformed ingest event", "key", string(key), "error", err)
			return nil
		}
		if len(event.ConversationIDs) == 0 {
			return nil
		}
		res, err := a.Analyze(ctx, event.ConversationIDs)
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Info("no user messages to label", "filename", event.Filename)
			return nil
		}
		if err != nil {
			return err
		}
		log.Info("ingested conversations labelled",
			"filename", event.Filename,
			"conversations", len(event.ConversationIDs),
			"topics", res.TopicsAnalyzed,
			"saved", res.TopicsSaved,
		)
		return nil
	}
}
