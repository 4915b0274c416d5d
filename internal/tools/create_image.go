package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/config"
)

// CreateImageTool generates an image through an OpenAI-compatible
// /images/generations endpoint and writes it into the workspace, so the
// outbound path can deliver it as a media attachment. The provider/model
// come from the role's image-gen override, defaulting to the OpenAI
// credential.
type CreateImageTool struct {
	creds config.ProvidersConfig
}

func NewCreateImageTool(creds config.ProvidersConfig) *CreateImageTool {
	return &CreateImageTool{creds: creds}
}

func (t *CreateImageTool) Name() string { return "create_image" }

func (t *CreateImageTool) Description() string {
	return "Generate an image from a text prompt and save it into the workspace. Returns the saved file path."
}

func (t *CreateImageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"prompt": map[string]interface{}{
				"type":        "string",
				"description": "Description of the image to generate.",
			},
			"size": map[string]interface{}{
				"type":        "string",
				"description": `Image size, e.g. "1024x1024" (default).`,
			},
		},
		"required": []string{"prompt"},
	}
}

const defaultImageGenModel = "gpt-image-1"

func (t *CreateImageTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	prompt, _ := args["prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		return ErrorResult("prompt is required")
	}
	size, _ := args["size"].(string)
	if size == "" {
		size = "1024x1024"
	}

	apiKey, apiBase, model := t.resolveEndpoint(ctx)
	if apiKey == "" {
		return ErrorResult("create_image: no image-generation credential configured")
	}

	png, err := t.generate(ctx, apiKey, apiBase, model, prompt, size)
	if err != nil {
		return ErrorResult(fmt.Sprintf("create_image: %v", err))
	}

	workspace := ToolWorkspaceFromCtx(ctx)
	if workspace == "" {
		workspace = os.TempDir()
	}
	outDir := filepath.Join(workspace, "generated")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("create_image: create output dir: %v", err))
	}
	outPath := filepath.Join(outDir, uuid.NewString()+".png")
	if err := os.WriteFile(outPath, png, 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("create_image: save image: %v", err))
	}

	result := NewResult("image saved to " + outPath)
	result.ForUser = outPath
	result.Model = model
	return result
}

// resolveEndpoint picks credential/base/model: per-role image-gen
// override first, then the OpenAI credential.
func (t *CreateImageTool) resolveEndpoint(ctx context.Context) (apiKey, apiBase, model string) {
	model = defaultImageGenModel
	apiKey = t.creds.OpenAI.APIKey
	apiBase = t.creds.OpenAI.APIBase
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}

	if cfg := ImageGenConfigFromCtx(ctx); cfg != nil {
		if cfg.Model != "" {
			model = cfg.Model
		}
		if cfg.Provider != "" {
			if cred, ok := t.lookupCred(cfg.Provider); ok {
				apiKey = cred.APIKey
				if cred.APIBase != "" {
					apiBase = cred.APIBase
				}
			}
		}
	}
	return apiKey, strings.TrimSuffix(apiBase, "/"), model
}

func (t *CreateImageTool) lookupCred(name string) (config.ProviderConfig, bool) {
	switch name {
	case "openai":
		return t.creds.OpenAI, true
	case "openrouter":
		return t.creds.OpenRouter, true
	case "gemini":
		return t.creds.Gemini, true
	case "xai":
		return t.creds.XAI, true
	default:
		return config.ProviderConfig{}, false
	}
}

func (t *CreateImageTool) generate(ctx context.Context, apiKey, apiBase, model, prompt, size string) ([]byte, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model":  model,
		"prompt": prompt,
		"size":   size,
		"n":      1,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBase+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	client := &http.Client{Timeout: 3 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncateStr(string(raw), 300))
	}

	var parsed struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
			URL     string `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("response carried no images")
	}
	if b64 := parsed.Data[0].B64JSON; b64 != "" {
		return base64.StdEncoding.DecodeString(b64)
	}
	if u := parsed.Data[0].URL; u != "" {
		return t.download(ctx, client, u)
	}
	return nil, fmt.Errorf("response carried neither image bytes nor a URL")
}

func (t *CreateImageTool) download(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64<<20))
}
