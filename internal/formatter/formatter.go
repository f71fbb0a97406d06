// Package formatter implements C3: enriching raw chatroom records (quote
// extraction, OCR injection, filter flags) and rendering the one-line
// textual representation the LLM classifies against. Rendering never raises
// on malformed XML; malformed payloads degrade to plain text (spec §4.3).
package formatter

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sqrtqiezi/diting-analyzer/internal/model"
	"github.com/sqrtqiezi/diting-analyzer/internal/timeutil"
)

const appMsgType = 49

// filteredAppMsgTypes carry no topical value (spec §4.3).
var filteredAppMsgTypes = map[int]struct{}{
	3: {}, 47: {}, 51: {}, 124: {},
}

// appmsgPayload is the slice of the WeChat XML payload the formatter cares
// about. Unknown/extra fields are ignored by encoding/xml.
type appmsgPayload struct {
	XMLName xml.Name `xml:"msg"`
	AppMsg  struct {
		Type     int    `xml:"type"`
		Title    string `xml:"title"`
		ReferMsg *struct {
			DisplayName string `xml:"displayname"`
			Content     string `xml:"content"`
		} `xml:"refermsg"`
	} `xml:"appmsg"`
	Emoji    *struct{} `xml:"emoji"`
	Sysmsg   *struct{} `xml:"sysmsg"`
	Voicemsg *struct{} `xml:"voicemsg"`
	Op       *struct {
		Name string `xml:"name"`
	} `xml:"op"`
}

// imageContentMarker is the substring that marks the placeholder content
// WeChat uses for image messages; OCR text is spliced into the rendered line
// when the content contains it and the OCR cache has an entry for the message.
const imageContentMarker = "<img"

// OCRCache is the read-only msg_id -> recognized_text lookup (spec §4.3.3,
// §6.2). Implementations live in internal/ocrcache.
type OCRCache interface {
	Lookup(msgID string) (text string, ok bool)
}

// Enrich returns a copy of messages in which the XML payload of msg_type==49
// records has been parsed, setting AppMsgType, ReferMsgDisplayName/Content,
// and ShouldFilter; the input slice is not modified. Records of other
// msg_types, or whose content fails to parse as the expected XML, are left
// untouched other than a synthesized MsgID.
func Enrich(messages []model.Message) []model.Message {
	out := make([]model.Message, len(messages))
	for i, m := range messages {
		if m.MsgID == "" {
			m.MsgID = uuid.NewString()
		}
		if m.MsgType == appMsgType {
			enrichOne(&m)
		}
		out[i] = m
	}
	return out
}

func enrichOne(m *model.Message) {
	var payload appmsgPayload
	if err := xml.Unmarshal([]byte(m.Content), &payload); err != nil {
		// Malformed XML renders as plain text; never fatal (spec §4.3, §7).
		return
	}

	t := payload.AppMsg.Type
	m.AppMsgType = &t
	if payload.AppMsg.ReferMsg != nil {
		m.ReferMsgDisplayName = payload.AppMsg.ReferMsg.DisplayName
		m.ReferMsgContent = payload.AppMsg.ReferMsg.Content
	}

	if shouldFilter(payload, t) {
		m.ShouldFilter = true
	}
}

func shouldFilter(payload appmsgPayload, t int) bool {
	if _, bad := filteredAppMsgTypes[t]; bad {
		return true
	}
	if payload.Emoji != nil || payload.Sysmsg != nil || payload.Voicemsg != nil {
		return true
	}
	if payload.Op != nil && payload.Op.Name == "lastMessage" {
		return true
	}
	// type==1 with a refermsg is a lightweight reaction reply (e.g. "🫡").
	if t == 1 && payload.AppMsg.ReferMsg != nil {
		return true
	}
	return false
}

// AssignSeqIDs stamps a dense 1-based _seq_id over messages in batch order
// (spec §4.3 invariant 2, §8 invariant 4).
func AssignSeqIDs(messages []model.Message) []model.Message {
	for i := range messages {
		messages[i].SeqID = i + 1
	}
	return messages
}

// RenderMode selects between the strict classification rendering (filtered
// messages skipped) and the more permissive summarization rendering (spec
// §4.3.4).
type RenderMode int

const (
	ModeClassify RenderMode = iota
	ModeSummarize
)

// RenderLines renders each message to "#{seq_id} [{HH:MM:SS}] {sender}:
// {text}". In ModeClassify, filtered messages are omitted from the output
// (but their _seq_id is preserved on the underlying slice so the LLM
// round-trip mapping in spec §4.5.3 stays valid). In ModeSummarize, filtered
// messages are included for situational awareness.
func RenderLines(messages []model.Message, ocr OCRCache, mode RenderMode) []string {
	lines := make([]string, 0, len(messages))
	for i := range messages {
		messages[i].Rendered = renderOne(messages[i], ocr)
		if mode == ModeClassify && messages[i].ShouldFilter {
			continue
		}
		lines = append(lines, messages[i].Rendered)
	}
	return lines
}

func renderOne(m model.Message, ocr OCRCache) string {
	text := renderText(m, ocr)
	return fmt.Sprintf("#%d [%s] %s: %s", m.SeqID, timeutil.FormatTime(m.CreateTime), m.Sender(), text)
}

func renderText(m model.Message, ocr OCRCache) string {
	if m.MsgType == appMsgType && m.AppMsgType != nil {
		switch *m.AppMsgType {
		case 49, 57:
			return fmt.Sprintf("[引用 @%s: %s] %s", m.ReferMsgDisplayName, snippet(m.ReferMsgContent, 40), extractTitle(m.Content))
		case 4, 5:
			return fmt.Sprintf("[分享] %s", extractTitle(m.Content))
		}
	}
	if strings.Contains(m.Content, imageContentMarker) {
		if ocr != nil {
			if text, ok := ocr.Lookup(m.MsgID); ok && text != "" {
				return fmt.Sprintf("[图片: %s]", text)
			}
		}
		return "[图片]"
	}
	return m.Content
}

func snippet(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func extractTitle(content string) string {
	var payload appmsgPayload
	if err := xml.Unmarshal([]byte(content), &payload); err != nil || payload.AppMsg.Title == "" {
		return content
	}
	return payload.AppMsg.Title
}
