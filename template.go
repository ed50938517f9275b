package topicroute

import (
	"strings"
)

// Separator delimits topic segments.
const Separator = "/"

// CatchAllParam is the route parameter name an unnamed catch-all binds to.
const CatchAllParam = "*"

// SegmentKind identifies how a template segment matches a topic segment.
type SegmentKind int

const (
	// SegmentLiteral matches an identical topic segment (case-sensitive).
	SegmentLiteral SegmentKind = iota

	// SegmentParam matches any single topic segment and captures it.
	SegmentParam

	// SegmentCatchAll matches zero or more trailing topic segments.
	SegmentCatchAll
)

// Segment is one element of a parsed template. Value holds the literal text
// for literals and the parameter name for parameters and named catch-alls.
type Segment struct {
	Kind  SegmentKind
	Value string
}

func (s Segment) String() string {
	switch s.Kind {
	case SegmentParam:
		return "{" + s.Value + "}"
	case SegmentCatchAll:
		if s.Value == "" {
			return "*"
		}
		return "{*" + s.Value + "}"
	default:
		return s.Value
	}
}

// Template is a parsed topic template. The zero value is not usable; create
// templates with ParseTemplate.
type Template struct {
	raw      string
	segments []Segment
	literals int
	params   int
	catchAll bool
}

// ParseTemplate parses a route declaration such as "zone/{zoneId}/reading"
// or "sensors/*".
//
// Segments are separated by "/". A segment of the form {name} is a
// parameter. The segments "*", "**", "#" and {*name} are catch-alls and may
// only appear last. Everything else is a literal, including the empty
// segment.
func ParseTemplate(s string) (Template, error) {
	if s == "" {
		return Template{}, malformed(s, "template is empty")
	}

	parts := strings.Split(s, Separator)
	t := Template{raw: s, segments: make([]Segment, 0, len(parts))}
	seen := make(map[string]struct{})

	for i, part := range parts {
		seg, err := parseSegment(s, part)
		if err != nil {
			return Template{}, err
		}

		switch seg.Kind {
		case SegmentCatchAll:
			if i != len(parts)-1 {
				return Template{}, malformed(s, "catch-all %q must be the last segment", part)
			}
			t.catchAll = true
		case SegmentParam:
			t.params++
		default:
			t.literals++
		}

		if seg.Kind != SegmentLiteral && seg.Value != "" {
			if _, dup := seen[seg.Value]; dup {
				return Template{}, malformed(s, "duplicate parameter %q", seg.Value)
			}
			seen[seg.Value] = struct{}{}
		}

		t.segments = append(t.segments, seg)
	}

	return t, nil
}

// MustParseTemplate is like ParseTemplate but panics on error. Use it for
// templates known at compile time.
func MustParseTemplate(s string) Template {
	t, err := ParseTemplate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func parseSegment(template, part string) (Segment, error) {
	switch part {
	case "*", "**", "#":
		return Segment{Kind: SegmentCatchAll}, nil
	case "+":
		return Segment{}, malformed(template, "single-level wildcard %q is not supported, use {name}", part)
	}

	open := strings.Count(part, "{")
	closing := strings.Count(part, "}")

	if open == 0 && closing == 0 {
		return Segment{Kind: SegmentLiteral, Value: part}, nil
	}

	if open != 1 || closing != 1 || !strings.HasPrefix(part, "{") || !strings.HasSuffix(part, "}") {
		return Segment{}, malformed(template, "segment %q must be a literal or a single {parameter}", part)
	}

	name := part[1 : len(part)-1]
	if rest, ok := strings.CutPrefix(name, "*"); ok {
		if rest == "" {
			return Segment{Kind: SegmentCatchAll}, nil
		}
		return Segment{Kind: SegmentCatchAll, Value: rest}, nil
	}
	if name == "" {
		return Segment{}, malformed(template, "empty parameter name")
	}
	return Segment{Kind: SegmentParam, Value: name}, nil
}

// JoinTemplates combines a controller-level prefix with an action template
// and parses the result. An empty prefix returns the action template.
func JoinTemplates(prefix, action string) (Template, error) {
	switch {
	case prefix == "":
		return ParseTemplate(action)
	case action == "":
		return ParseTemplate(prefix)
	}
	return ParseTemplate(strings.TrimSuffix(prefix, Separator) + Separator + strings.TrimPrefix(action, Separator))
}

// String returns the template as it was declared.
func (t Template) String() string { return t.raw }

// Segments returns a copy of the parsed segments.
func (t Template) Segments() []Segment {
	out := make([]Segment, len(t.segments))
	copy(out, t.segments)
	return out
}

// Literals returns the number of literal segments.
func (t Template) Literals() int { return t.literals }

// Captures returns the number of capturing segments (parameters plus a
// catch-all, if any).
func (t Template) Captures() int {
	if t.catchAll {
		return t.params + 1
	}
	return t.params
}

// HasCatchAll reports whether the template ends in a catch-all.
func (t Template) HasCatchAll() bool { return t.catchAll }

// Params returns the names of the parameter segments in declaration order.
// A named catch-all is included last.
func (t Template) Params() []string {
	var names []string
	for _, s := range t.segments {
		if s.Kind != SegmentLiteral && s.Value != "" {
			names = append(names, s.Value)
		}
	}
	return names
}

// Shape returns the structural key of the template. Two templates with the
// same shape match exactly the same topics.
func (t Template) Shape() string {
	parts := make([]string, len(t.segments))
	for i, s := range t.segments {
		switch s.Kind {
		case SegmentParam:
			parts[i] = "{}"
		case SegmentCatchAll:
			parts[i] = "*"
		default:
			parts[i] = s.Value
		}
	}
	return strings.Join(parts, Separator)
}

// fixed returns the number of segments that precede a catch-all, or the
// total segment count when there is none.
func (t Template) fixed() int {
	if t.catchAll {
		return len(t.segments) - 1
	}
	return len(t.segments)
}

// match reports whether the topic segments satisfy the template and, when
// they do, returns the captured parameters and catch-all tail.
func (t Template) match(topic []string) (map[string]string, string, bool) {
	n := t.fixed()
	if t.catchAll {
		if len(topic) < n {
			return nil, "", false
		}
	} else if len(topic) != n {
		return nil, "", false
	}

	for i := 0; i < n; i++ {
		s := t.segments[i]
		if s.Kind == SegmentLiteral && s.Value != topic[i] {
			return nil, "", false
		}
	}

	params := make(map[string]string, t.Captures())
	for i := 0; i < n; i++ {
		if s := t.segments[i]; s.Kind == SegmentParam {
			params[s.Value] = topic[i]
		}
	}

	var tail string
	if t.catchAll {
		tail = strings.Join(topic[n:], Separator)
		name := t.segments[n].Value
		if name == "" {
			name = CatchAllParam
		}
		params[name] = tail
	}

	return params, tail, true
}
