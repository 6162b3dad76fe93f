package format

import "strings"

// htmlEscaper escapes only what Telegram's HTML parse mode requires.
// strings.Replacer works in a single pass, so entities it emits are never re-escaped.
var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape escapes text for Telegram HTML parse mode.
//
// It is not idempotent: Escape(Escape(s)) turns "&amp;" into "&amp;amp;".
// Format each raw input exactly once.
func Escape(s string) string { return htmlEscaper.Replace(s) }

func bold(inner string) string { return "<b>" + inner + "</b>" }

func pre(inner string) string { return "<pre><code>" + inner + "</code></pre>" }

// Clip limits s to at most limit UTF-16 units (see Units).
//
// When s is longer, it keeps at most limit-1 units and appends Ellipsis, so the
// result never exceeds limit units. If the cut would split an HTML tag or entity it
// backs off to the start of it, and tags left open are closed after the
// ellipsis so the result stays valid markup.
func Clip(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if Units(s) <= limit {
		return s
	}
	keep := limit - 1
	for keep > 0 {
		head := backOff(PrefixUnits(s, keep))
		closers := closingTags(head)
		total := Units(head) + Units(Ellipsis) + Units(closers)
		if total <= limit {
			return head + Ellipsis + closers
		}
		keep -= total - limit
	}
	return Ellipsis
}

// backOff drops a trailing partial tag ("<pr") or entity ("&am").
func backOff(s string) string {
	if i := strings.LastIndexByte(s, '<'); i >= 0 && strings.IndexByte(s[i:], '>') < 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, '&'); i >= 0 && strings.IndexByte(s[i:], ';') < 0 {
		s = s[:i]
	}
	return s
}

// closingTags returns the closing tags for elements still open at the end of s.
func closingTags(s string) string {
	var open []string
	for {
		i := strings.IndexByte(s, '<')
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i:], '>')
		if j < 0 {
			break
		}
		tag := s[i+1 : i+j]
		s = s[i+j+1:]
		if strings.HasPrefix(tag, "/") {
			name := tag[1:]
			for k := len(open) - 1; k >= 0; k-- {
				if open[k] == name {
					open = open[:k]
					break
				}
			}
			continue
		}
		if name, _, _ := strings.Cut(tag, " "); name != "" {
			open = append(open, name)
		}
	}
	var b strings.Builder
	for k := len(open) - 1; k >= 0; k-- {
		b.WriteString("</")
		b.WriteString(open[k])
		b.WriteString(">")
	}
	return b.String()
}
