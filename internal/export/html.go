// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/russross/blackfriday"

	"github.com/jeranaias/polychat/internal/model"
)

// markdownExtensions enables the GitHub-flavoured subset assistants write.
const markdownExtensions = blackfriday.EXTENSION_NO_INTRA_EMPHASIS |
	blackfriday.EXTENSION_TABLES |
	blackfriday.EXTENSION_FENCED_CODE |
	blackfriday.EXTENSION_AUTOLINK |
	blackfriday.EXTENSION_STRIKETHROUGH |
	blackfriday.EXTENSION_SPACE_HEADERS |
	blackfriday.EXTENSION_BACKSLASH_LINE_BREAK

// markdownFlags drops raw HTML from message text; replies are untrusted.
const markdownFlags = blackfriday.HTML_SKIP_HTML |
	blackfriday.HTML_SKIP_STYLE |
	blackfriday.HTML_SAFELINK |
	blackfriday.HTML_NOFOLLOW_LINKS |
	blackfriday.HTML_HREF_TARGET_BLANK

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports chats to a self-contained HTML page.
type HTMLExporter struct {
	options  *Options
	renderer blackfriday.Renderer
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{
		options:  opts,
		renderer: blackfriday.HtmlRenderer(markdownFlags, "", ""),
	}
}

// Export converts a chat to HTML format.
func (e *HTMLExporter) Export(chat *model.Chat) ([]byte, error) {
	if err := validateChat(chat); err != nil {
		return nil, err
	}

	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}

	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", html.EscapeString(chat.Title)))
	sb.WriteString("    <meta name=\"generator\" content=\"polychat\">\n")
	sb.WriteString(fmt.Sprintf("    <meta name=\"date\" content=\"%s\">\n", chat.CreatedAt.Format(time.RFC3339)))
	sb.WriteString(stylesheet)
	sb.WriteString("</head>\n")
	sb.WriteString(fmt.Sprintf("<body class=\"%s-theme\">\n", theme))
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		sb.WriteString(e.renderHeader(chat))
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for i := range chat.Messages {
		sb.WriteString(e.renderMessage(&chat.Messages[i]))
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	sb.WriteString(fmt.Sprintf("            <p>Exported from <strong>polychat</strong> on %s</p>\n",
		time.Now().Format("January 2, 2006 at 3:04 PM")))
	sb.WriteString("        </footer>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString(themeScript)
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) renderHeader(chat *model.Chat) string {
	var sb strings.Builder

	sb.WriteString("        <header class=\"header\">\n")
	sb.WriteString(fmt.Sprintf("            <h1>%s</h1>\n", html.EscapeString(chat.Title)))
	sb.WriteString("            <div class=\"metadata\">\n")
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Model:</strong> %s</span>\n", html.EscapeString(modelLabel(chat.ModelID))))
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Created:</strong> %s</span>\n", formatTimestamp(chat.CreatedAt)))
	sb.WriteString(fmt.Sprintf("                <span class=\"meta-item\"><strong>Messages:</strong> %d</span>\n", len(chat.Messages)))
	sb.WriteString("                <button class=\"theme-toggle\" onclick=\"toggleTheme()\" title=\"Toggle theme\">[Theme]</button>\n")
	sb.WriteString("            </div>\n")
	sb.WriteString("        </header>\n")

	return sb.String()
}

func (e *HTMLExporter) renderMessage(msg *model.Message) string {
	var sb strings.Builder

	roleClass := "unknown"
	if msg.Role.Valid() {
		roleClass = string(msg.Role)
	}
	sb.WriteString(fmt.Sprintf("            <div class=\"message %s-message\">\n", roleClass))

	sb.WriteString("                <div class=\"message-header\">\n")
	sb.WriteString(fmt.Sprintf("                    <span class=\"role-label\">%s</span>\n", html.EscapeString(roleLabel(msg.Role))))
	if e.options.IncludeTimestamps {
		sb.WriteString(fmt.Sprintf("                    <span class=\"timestamp\">%s</span>\n", formatShortTimestamp(msg.Timestamp)))
	}
	sb.WriteString("                </div>\n")

	sb.WriteString("                <div class=\"message-content\">\n")
	if strings.TrimSpace(msg.Content) != "" {
		sb.Write(e.formatContent(msg.Content))
	}
	if msg.Kind() == model.ContentImage {
		sb.WriteString(renderImage("Generated image", msg.ImageURL))
	}
	if msg.HasAttachments() {
		sb.WriteString(renderAttachments(msg))
	}
	sb.WriteString("                </div>\n")
	sb.WriteString("            </div>\n")

	return sb.String()
}

// formatContent renders message Markdown. Raw HTML in the text is dropped
// and fenced code language names are attribute-escaped by the renderer.
func (e *HTMLExporter) formatContent(content string) []byte {
	return blackfriday.Markdown([]byte(content), e.renderer, markdownExtensions)
}

// renderImage inlines an image. Only data URLs are emitted so an export never
// fetches remote content when opened.
func renderImage(alt, src string) string {
	if !model.IsImageDataURL(src) {
		return fmt.Sprintf("<p class=\"missing-image\">[%s unavailable]</p>\n", html.EscapeString(alt))
	}
	return fmt.Sprintf("<figure><img src=\"%s\" alt=\"%s\"></figure>\n",
		html.EscapeString(src), html.EscapeString(alt))
}

func renderAttachments(msg *model.Message) string {
	var sb strings.Builder
	sb.WriteString("<div class=\"attachments\">\n<p><strong>Attachments</strong></p>\n<ul>\n")
	for i, name := range msg.FileNames {
		sb.WriteString("<li>")
		sb.WriteString(html.EscapeString(name))
		if i < len(msg.FileURLs) && model.IsImageDataURL(msg.FileURLs[i]) {
			sb.WriteString("\n")
			sb.WriteString(renderImage(name, msg.FileURLs[i]))
		}
		sb.WriteString("</li>\n")
	}
	sb.WriteString("</ul>\n</div>\n")
	return sb.String()
}

// =============================================================================
// EMBEDDED CSS AND JAVASCRIPT
// =============================================================================

const stylesheet = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif;
            --font-mono: "SF Mono", Monaco, Inconsolata, "Fira Code", monospace;
        }

        .dark-theme {
            --bg: #0f1117; --panel: #181b24; --text: #e4e6ee; --muted: #8b90a0;
            --border: #2a2f3d; --user: #1f2a44; --assistant: #1b2220; --code: #11141b;
        }

        .light-theme {
            --bg: #f6f7fb; --panel: #ffffff; --text: #1d2030; --muted: #606578;
            --border: #dfe2ea; --user: #e8eefc; --assistant: #eef6f1; --code: #f1f3f7;
        }

        body {
            font-family: var(--font-sans);
            background: var(--bg);
            color: var(--text);
            line-height: 1.6;
            padding: 24px;
        }

        .container { max-width: 900px; margin: 0 auto; }

        .header, .conversation, .footer {
            background: var(--panel);
            border: 1px solid var(--border);
            border-radius: 10px;
            padding: 24px;
            margin-bottom: 16px;
        }

        .header h1 { font-size: 1.6em; margin-bottom: 8px; }
        .metadata { display: flex; flex-wrap: wrap; gap: 16px; color: var(--muted); font-size: 0.9em; align-items: center; }
        .theme-toggle { margin-left: auto; background: none; border: 1px solid var(--border); color: var(--text); border-radius: 6px; padding: 2px 10px; cursor: pointer; }

        .message { border-radius: 8px; padding: 16px 20px; margin-bottom: 14px; border: 1px solid var(--border); }
        .user-message { background: var(--user); }
        .assistant-message { background: var(--assistant); }
        .message-header { display: flex; justify-content: space-between; margin-bottom: 8px; font-size: 0.85em; color: var(--muted); }
        .role-label { font-weight: 600; }

        .message-content p, .message-content ul, .message-content ol, .message-content table { margin-bottom: 10px; }
        .message-content ul, .message-content ol { padding-left: 24px; }
        .message-content code { font-family: var(--font-mono); background: var(--code); padding: 1px 5px; border-radius: 4px; font-size: 0.9em; }
        .message-content pre { background: var(--code); padding: 12px 14px; border-radius: 6px; overflow-x: auto; margin-bottom: 10px; }
        .message-content pre code { padding: 0; background: none; }
        .message-content table { border-collapse: collapse; }
        .message-content th, .message-content td { border: 1px solid var(--border); padding: 4px 10px; }
        .message-content img { max-width: 100%; border-radius: 6px; margin-top: 8px; }
        .attachments { margin-top: 10px; font-size: 0.9em; color: var(--muted); }
        .attachments ul { padding-left: 20px; }

        .footer { text-align: center; color: var(--muted); font-size: 0.85em; }

        @media print {
            .theme-toggle { display: none; }
            .message { page-break-inside: avoid; }
        }
    </style>
`

const themeScript = `    <script>
        function toggleTheme() {
            const body = document.body;
            const next = body.classList.contains('dark-theme') ? 'light' : 'dark';
            body.classList.remove('dark-theme', 'light-theme');
            body.classList.add(next + '-theme');
            localStorage.setItem('theme', next);
        }

        document.addEventListener('DOMContentLoaded', function() {
            const saved = localStorage.getItem('theme');
            if (saved) {
                document.body.classList.remove('dark-theme', 'light-theme');
                document.body.classList.add(saved + '-theme');
            }
        });
    </script>
`
