// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/polychat/internal/model"
)

// MaxAttachmentSize bounds a single attached file.
const MaxAttachmentSize = 20 << 20

// LoadAttachment reads a file for sending. The media type comes from the
// extension, then from content sniffing.
func LoadAttachment(path string) (model.Attachment, error) {
	path = expandHome(path)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Attachment{}, fmt.Errorf("file not found: %s", path)
		}
		return model.Attachment{}, fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return model.Attachment{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxAttachmentSize {
		return model.Attachment{}, fmt.Errorf("file too large: %s (max %s)",
			formatBytes(info.Size()), formatBytes(MaxAttachmentSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("failed to read file: %w", err)
	}

	name := filepath.Base(path)
	return model.Attachment{
		Name:      name,
		MediaType: detectMediaType(name, data),
		Data:      data,
	}, nil
}

func detectMediaType(name string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		if mediaType, _, err := mime.ParseMediaType(t); err == nil {
			return mediaType
		}
	}
	t := http.DetectContentType(data)
	if mediaType, _, err := mime.ParseMediaType(t); err == nil {
		return mediaType
	}
	return "application/octet-stream"
}
