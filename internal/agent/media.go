package agent

import (
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/providers"
)

// maxAttachmentBytes bounds how large an image attachment may be before
// it is skipped rather than base64-inflated into the prompt.
const maxAttachmentBytes = 10 * 1024 * 1024

var imageMimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// loadImages reads the image attachments among paths and returns them
// base64-encoded for the provider wire format. Non-image paths,
// unreadable files, and oversized files are skipped with a warning.
func loadImages(paths []string) []providers.ImageContent {
	var images []providers.ImageContent
	for _, p := range paths {
		mime, ok := imageMimeByExt[strings.ToLower(filepath.Ext(p))]
		if !ok {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			slog.Warn("agent: unreadable image attachment skipped", "path", p, "error", err)
			continue
		}
		if len(data) > maxAttachmentBytes {
			slog.Warn("agent: oversized image attachment skipped", "path", p, "size", len(data))
			continue
		}
		images = append(images, providers.ImageContent{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(data),
		})
	}
	return images
}
