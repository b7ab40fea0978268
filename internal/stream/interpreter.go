// Package stream turns the structured event stream emitted by agent CLIs
// into human-readable lines.
package stream

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

const (
	toolResultPreview = 200
	toolResultPrefix  = "  ⎿ "
	toolUsePrefix     = "[tool] "
)

// Interpreter is fed raw stdout chunks and yields display lines. It is not
// safe for concurrent use; each job owns one.
type Interpreter struct {
	pending   bytes.Buffer    // bytes after the last newline
	text      strings.Builder // assistant prose not yet ended by a newline
	sawDelta  bool
	seenTools map[string]struct{}
	final     string
	hasFinal  bool
}

func New() *Interpreter {
	return &Interpreter{seenTools: map[string]struct{}{}}
}

// Feed consumes a chunk and returns any display lines it completed. Chunk
// boundaries do not matter: the same bytes fed in any split produce the
// same lines.
func (in *Interpreter) Feed(chunk []byte) []string {
	in.pending.Write(chunk)
	var out []string
	for {
		data := in.pending.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := string(data[:i])
		in.pending.Next(i + 1)
		out = append(out, in.handle(line)...)
	}
	return out
}

// Flush processes any unterminated trailing line and emits buffered prose.
// Call it once the stream has ended.
func (in *Interpreter) Flush() []string {
	var out []string
	if in.pending.Len() > 0 {
		line := in.pending.String()
		in.pending.Reset()
		out = append(out, in.handle(line)...)
	}
	return append(out, in.flushText()...)
}

// FinalResult returns the text of the terminal result event, if one arrived.
func (in *Interpreter) FinalResult() (string, bool) {
	return in.final, in.hasFinal
}

func (in *Interpreter) handle(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" || !gjson.Valid(line) {
		return nil
	}
	ev := gjson.Parse(line)
	if !ev.IsObject() {
		return nil
	}
	switch ev.Get("type").String() {
	case "stream_event":
		return in.handleStreamEvent(ev.Get("event"))
	case "assistant":
		return in.handleAssistant(ev.Get("message.content"))
	case "user":
		return in.handleToolResults(ev.Get("message.content"))
	case "result":
		out := in.flushText()
		if r := ev.Get("result"); r.Exists() {
			in.final = r.String()
			in.hasFinal = true
		}
		return out
	}
	return nil
}

func (in *Interpreter) handleStreamEvent(ev gjson.Result) []string {
	switch ev.Get("type").String() {
	case "content_block_delta":
		if ev.Get("delta.type").String() == "text_delta" {
			in.sawDelta = true
			return in.appendText(ev.Get("delta.text").String())
		}
	case "content_block_start":
		block := ev.Get("content_block")
		if block.Get("type").String() == "tool_use" {
			return in.toolUse(block)
		}
	}
	return nil
}

// handleAssistant covers complete assistant messages. Text is only taken
// from them when no incremental deltas were seen, to avoid printing twice.
func (in *Interpreter) handleAssistant(content gjson.Result) []string {
	var out []string
	content.ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			if !in.sawDelta {
				t := block.Get("text").String()
				if t != "" && !strings.HasSuffix(t, "\n") {
					t += "\n"
				}
				out = append(out, in.appendText(t)...)
			}
		case "tool_use":
			out = append(out, in.toolUse(block)...)
		}
		return true
	})
	return out
}

func (in *Interpreter) handleToolResults(content gjson.Result) []string {
	var out []string
	content.ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() != "tool_result" {
			return true
		}
		out = append(out, in.flushText()...)
		out = append(out, toolResultPrefix+preview(toolResultText(block.Get("content"))))
		return true
	})
	return out
}

func (in *Interpreter) toolUse(block gjson.Result) []string {
	if id := block.Get("id").String(); id != "" {
		if _, dup := in.seenTools[id]; dup {
			return nil
		}
		in.seenTools[id] = struct{}{}
	}
	name := block.Get("name").String()
	if name == "" {
		name = "unknown"
	}
	out := in.flushText()
	return append(out, toolUsePrefix+name)
}

func (in *Interpreter) appendText(frag string) []string {
	if frag == "" {
		return nil
	}
	in.text.WriteString(frag)
	s := in.text.String()
	idx := strings.LastIndexByte(s, '\n')
	if idx < 0 {
		return nil
	}
	complete, rest := s[:idx], s[idx+1:]
	in.text.Reset()
	in.text.WriteString(rest)
	return strings.Split(complete, "\n")
}

func (in *Interpreter) flushText() []string {
	if in.text.Len() == 0 {
		return nil
	}
	s := in.text.String()
	in.text.Reset()
	return strings.Split(s, "\n")
}

// toolResultText accepts either a plain string or an array of text blocks.
func toolResultText(c gjson.Result) string {
	if c.Type == gjson.String {
		return c.String()
	}
	if !c.IsArray() {
		return c.Raw
	}
	var b strings.Builder
	c.ForEach(func(_, item gjson.Result) bool {
		if t := item.Get("text"); t.Exists() {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(t.String())
		}
		return true
	})
	return b.String()
}

// preview collapses whitespace and truncates to toolResultPreview runes.
func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= toolResultPreview {
		return s
	}
	r := []rune(s)
	return string(r[:toolResultPreview]) + "…"
}
