package bbcode

import (
	"strconv"
	"strings"
)

// segment is one piece of a parsed template. Literal segments have group set
// to literalSegment, placeholder segments carry the 0-based capture group index
// (or badGroup when the key is not a number).
type segment struct {
	text  string
	group int
}

const (
	literalSegment = -1
	badGroup       = -2
)

// parseTemplate splits a template into literal text and %(i)s placeholders.
// "%%" is an escaped percent sign. Any other '%' is kept as literal text.
// Parsing never fails; placeholder keys are only checked against the pattern
// when a match is rendered.
func parseTemplate(tmpl string) []segment {
	var segs []segment
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{text: lit.String(), group: literalSegment})
			lit.Reset()
		}
	}

	for i := 0; i < len(tmpl); {
		if tmpl[i] != '%' {
			lit.WriteByte(tmpl[i])
			i++
			continue
		}
		if strings.HasPrefix(tmpl[i:], "%%") {
			lit.WriteByte('%')
			i += 2
			continue
		}
		if strings.HasPrefix(tmpl[i:], "%(") {
			end := strings.Index(tmpl[i+2:], ")s")
			if end >= 0 {
				key := tmpl[i+2 : i+2+end]
				group := badGroup
				if n, err := strconv.Atoi(key); err == nil && n >= 0 && !strings.ContainsAny(key, "+-") {
					group = n
				}
				flush()
				segs = append(segs, segment{text: key, group: group})
				i += 2 + end + 2
				continue
			}
		}
		lit.WriteByte('%')
		i++
	}
	flush()
	return segs
}

// render interpolates a match into the parsed template. loc is the submatch
// index slice from regexp.FindStringSubmatchIndex. A group that exists but did
// not take part in the match renders as the empty string.
func (r *Rule) render(pos int, text string, loc []int) (string, error) {
	groups := len(loc)/2 - 1
	var sb strings.Builder
	for _, seg := range r.segments {
		if seg.group == literalSegment {
			sb.WriteString(seg.text)
			continue
		}
		if seg.group < 0 || seg.group >= groups {
			return "", &TemplateBindingError{Rule: pos, Name: r.Name, Placeholder: seg.text, Groups: groups}
		}
		start, end := loc[2*(seg.group+1)], loc[2*(seg.group+1)+1]
		if start >= 0 {
			sb.WriteString(text[start:end])
		}
	}
	return sb.String(), nil
}
