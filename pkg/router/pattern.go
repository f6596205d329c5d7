package router

import (
	"fmt"
	"regexp"
	"strings"
)

// PatternKind selects how a message listener matches message content.
type PatternKind string

const (
	PatternExact      PatternKind = "exact"
	PatternStart      PatternKind = "start"
	PatternEnd        PatternKind = "end"
	PatternContain    PatternKind = "contain"
	PatternRegex      PatternKind = "regex"
	PatternBotMention PatternKind = "botMention"
	PatternEvery      PatternKind = "every"
)

// escapeLiteral makes value safe to embed in a regular expression. The
// hyphen is written as \x2d so the literal also survives inside a class.
func escapeLiteral(value string) string {
	return strings.ReplaceAll(regexp.QuoteMeta(value), "-", `\x2d`)
}

// compilePattern builds the content matcher for a message listener.
// PatternBotMention has no content matcher and returns nil.
func compilePattern(kind PatternKind, value string, caseSensitive bool) (*regexp.Regexp, error) {
	lit := escapeLiteral(value)

	var expr string
	switch kind {
	case PatternExact, "":
		expr = "^" + lit + "$"
	case PatternStart:
		expr = "^" + lit
	case PatternEnd:
		expr = lit + "$"
	case PatternContain:
		expr = lit
	case PatternRegex:
		expr = value
	case PatternEvery:
		expr = "(.*)"
	case PatternBotMention:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown pattern %q", ErrInvalidPattern, kind)
	}

	if !caseSensitive {
		expr = "(?i)" + expr
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return re, nil
}
