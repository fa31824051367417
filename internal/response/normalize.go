// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package response

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jeranaias/polychat/internal/logger"
	"github.com/jeranaias/polychat/internal/model"
	"github.com/jeranaias/polychat/internal/provider"
)

// User-visible reply texts.
const (
	NoResponseText     = "No response"
	ImageSuccessText   = "Image generated successfully"
	imageFailurePrefix = "Error processing image: "
)

// Normalizer converts provider outcomes into assistant messages.
type Normalizer struct {
	images Materializer
	log    *slog.Logger
}

// NewNormalizer creates a normalizer that downloads generated images with m.
func NewNormalizer(m Materializer, log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{images: m, log: log}
}

// Resolve builds the assistant message for outcome. It never fails: an image
// that cannot be fetched becomes an error-text reply. It returns ctx.Err()
// alongside the message when the fetch was abandoned by cancellation so the
// caller can discard the reply.
func (n *Normalizer) Resolve(ctx context.Context, outcome provider.Outcome) (model.Message, error) {
	switch o := outcome.(type) {
	case provider.Text:
		content := o.Content
		if content == "" {
			content = NoResponseText
		}
		return model.NewMessage(model.RoleAssistant, content), nil

	case provider.GeneratedImage:
		dataURL, err := n.images.Materialize(ctx, o.URL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return model.Message{}, ctxErr
			}
			n.log.Warn("generated image download failed", logger.Err(err))
			return model.NewMessage(model.RoleAssistant, imageFailurePrefix+err.Error()), nil
		}
		return model.NewImageMessage(ImageSuccessText, dataURL), nil

	default:
		return model.NewMessage(model.RoleAssistant, fmt.Sprintf("%s (unexpected outcome %T)", NoResponseText, outcome)), nil
	}
}
