package capture

import "regexp"

type patternKind uint8

const (
	patternRegexp patternKind = iota
	// patternUnmatchable stands in for a pattern that failed to compile.
	patternUnmatchable
)

// Pattern is a compiled ignore rule.
type Pattern struct {
	kind patternKind
	src  string
	re   *regexp.Regexp
}

// CompilePattern compiles src case-insensitively. A pattern that does not
// compile yields a Pattern that never matches.
func CompilePattern(src string) Pattern {
	re, err := regexp.Compile("(?i)" + src)
	if err != nil {
		return Pattern{kind: patternUnmatchable, src: src}
	}
	return Pattern{kind: patternRegexp, src: src, re: re}
}

func (p Pattern) Valid() bool    { return p.kind == patternRegexp }
func (p Pattern) String() string { return p.src }

func (p Pattern) Match(s string) bool {
	if p.kind != patternRegexp {
		return false
	}
	return p.re.MatchString(s)
}
