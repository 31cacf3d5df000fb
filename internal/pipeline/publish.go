package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/panelvox/panelvox/internal/objectstore"
)

// Publisher ships a finished scene's artifacts to external storage.
// Publishing happens after persistence and never affects the scene outcome.
type Publisher interface {
	PublishScene(ctx context.Context, result *SceneResult) error
}

// publish runs the configured publisher, degrading failures to a warning.
func (p *Pipeline) publish(ctx context.Context, result *SceneResult) {
	if err := p.publisher.PublishScene(ctx, result); err != nil {
		p.log.Warn("scene publishing failed", "scene", result.SceneID, "error", err)
	}
}

// StoragePublisher publishes scene artifacts to a Supabase-style object
// store: one script JSON per successful page, plus audio and transcript when
// the page was rendered. Uploads are idempotent overwrites, so republishing
// a scene is safe.
type StoragePublisher struct {
	log    *slog.Logger
	client *objectstore.Client
	bucket string
}

var _ Publisher = (*StoragePublisher)(nil)

// NewStoragePublisher creates a StoragePublisher writing into bucket.
func NewStoragePublisher(client *objectstore.Client, bucket string, log *slog.Logger) *StoragePublisher {
	if log == nil {
		log = slog.Default()
	}
	return &StoragePublisher{
		log:    log.With("component", "publisher"),
		client: client,
		bucket: bucket,
	}
}

// PublishScene implements Publisher.
func (sp *StoragePublisher) PublishScene(ctx context.Context, result *SceneResult) error {
	for _, pr := range result.Pages {
		if !pr.Success || pr.Script == nil {
			continue
		}
		base := fmt.Sprintf("%s/%s", result.SceneID, pr.Script.PageID)

		payload, err := json.Marshal(pr.Script)
		if err != nil {
			return fmt.Errorf("pipeline: encode script %s: %w", pr.Script.PageID, err)
		}
		if _, err := sp.client.Upload(ctx, sp.bucket, base+".json", payload, "application/json"); err != nil {
			return err
		}

		if pr.Audio == nil {
			continue
		}
		if len(pr.Audio.Audio) > 0 {
			name := base + "." + audioExtension(pr.Audio.Format)
			if _, err := sp.client.Upload(ctx, sp.bucket, name, pr.Audio.Audio, audioContentType(pr.Audio.Format)); err != nil {
				return err
			}
		}
		if pr.Audio.Transcript != "" {
			if _, err := sp.client.Upload(ctx, sp.bucket, base+".txt", []byte(pr.Audio.Transcript), "text/plain"); err != nil {
				return err
			}
		}
	}
	sp.log.Info("scene published", "scene", result.SceneID, "bucket", sp.bucket)
	return nil
}

func audioExtension(format string) string {
	if strings.HasPrefix(format, "pcm") {
		return "pcm"
	}
	return "mp3"
}

func audioContentType(format string) string {
	if strings.HasPrefix(format, "pcm") {
		return "audio/pcm"
	}
	return "audio/mpeg"
}
