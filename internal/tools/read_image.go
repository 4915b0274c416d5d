package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/providers"
)

const ctxMediaImages toolContextKey = "tool_media_images"

// WithMediaImages attaches the current message's decoded image
// attachments so read_image can hand them to a vision model.
func WithMediaImages(ctx context.Context, images []providers.ImageContent) context.Context {
	return context.WithValue(ctx, ctxMediaImages, images)
}

// MediaImagesFromCtx returns the images set by WithMediaImages, or nil.
func MediaImagesFromCtx(ctx context.Context) []providers.ImageContent {
	v, _ := ctx.Value(ctxMediaImages).([]providers.ImageContent)
	return v
}

// visionFallbackOrder is tried when no per-role vision override is
// configured; the first registered provider wins.
var visionFallbackOrder = []string{"anthropic", "openai", "openrouter", "gemini"}

// ReadImageTool describes the current message's image attachments via a
// vision-capable provider. It exists for sessions whose primary model has
// no vision support; a role can point it at a different provider/model
// through its tool policy's vision override.
type ReadImageTool struct {
	registry *providers.Registry
}

func NewReadImageTool(registry *providers.Registry) *ReadImageTool {
	return &ReadImageTool{registry: registry}
}

func (t *ReadImageTool) Name() string { return "read_image" }

func (t *ReadImageTool) Description() string {
	return "Analyze images attached to the current message using a vision model. Use when you cannot view attached images directly."
}

func (t *ReadImageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"prompt": map[string]interface{}{
				"type":        "string",
				"description": "What to determine about the image(s), e.g. 'What text is in this image?'",
			},
		},
		"required": []string{"prompt"},
	}
}

func (t *ReadImageTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	prompt, _ := args["prompt"].(string)
	if prompt == "" {
		prompt = "Describe this image in detail."
	}

	images := MediaImagesFromCtx(ctx)
	if len(images) == 0 {
		return ErrorResult("no images are attached to the current message")
	}

	provider, model, err := t.resolveVision(ctx)
	if err != nil {
		return ErrorResult(err.Error())
	}
	slog.Debug("read_image: querying vision model", "provider", provider.Name(), "model", model, "images", len(images))

	resp, err := provider.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: prompt, Images: images}},
		Model:    model,
		Options:  map[string]interface{}{"max_tokens": 1024, "temperature": 0.3},
	})
	if err != nil {
		return ErrorResult(fmt.Sprintf("vision provider: %v", err))
	}

	result := NewResult(resp.Content)
	result.Usage = resp.Usage
	result.Provider = provider.Name()
	result.Model = model
	return result
}

// resolveVision picks the vision provider/model: the per-role override
// wins, then the first registered provider from the fallback order.
func (t *ReadImageTool) resolveVision(ctx context.Context) (providers.Provider, string, error) {
	if cfg := VisionConfigFromCtx(ctx); cfg != nil && cfg.Provider != "" {
		p, err := t.registry.Get(cfg.Provider)
		if err != nil {
			return nil, "", fmt.Errorf("configured vision provider %q not available: %w", cfg.Provider, err)
		}
		model := cfg.Model
		if model == "" {
			model = p.DefaultModel()
		}
		return p, model, nil
	}
	for _, name := range visionFallbackOrder {
		if p, err := t.registry.Get(name); err == nil {
			return p, p.DefaultModel(), nil
		}
	}
	return nil, "", fmt.Errorf("no vision-capable provider available (need one of %v)", visionFallbackOrder)
}
