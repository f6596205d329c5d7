package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeLiteral(t *testing.T) {
	assert.Equal(t, `a\.b`, escapeLiteral("a.b"))
	assert.Equal(t, `\x2dflag`, escapeLiteral("-flag"))
	assert.Equal(t, `\(x\|y\)\*`, escapeLiteral("(x|y)*"))
}

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		name          string
		kind          PatternKind
		value         string
		caseSensitive bool
		content       string
		want          bool
	}{
		{"literal dot matches itself", PatternExact, "a.b", false, "a.b", true},
		{"literal dot is not a wildcard", PatternExact, "a.b", false, "axb", false},
		{"exact needs whole content", PatternExact, "hello", false, "hello there", false},
		{"exact ignores case by default", PatternExact, "Hello", false, "hELLO", true},
		{"case sensitive", PatternExact, "Hello", true, "hello", false},
		{"start", PatternStart, "!ping", false, "!ping now", true},
		{"start anchored", PatternStart, "!ping", false, "say !ping", false},
		{"end", PatternEnd, "bye", false, "ok bye", true},
		{"contain", PatternContain, "[x]", false, "a [x] b", true},
		{"contain hyphen", PatternContain, "a-b", false, "xa-by", true},
		{"regex is raw", PatternRegex, `^\d+$`, false, "1234", true},
		{"regex rejects", PatternRegex, `^\d+$`, false, "12a", false},
		{"every", PatternEvery, "ignored", false, "", true},
		{"empty kind is exact", "", "hi", false, "hi", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re, err := compilePattern(tt.kind, tt.value, tt.caseSensitive)
			require.NoError(t, err)
			require.NotNil(t, re)
			assert.Equal(t, tt.want, re.MatchString(tt.content))
		})
	}
}

func TestCompilePatternErrors(t *testing.T) {
	_, err := compilePattern(PatternRegex, "(", false)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = compilePattern("fuzzy", "x", false)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	re, err := compilePattern(PatternBotMention, "", false)
	assert.NoError(t, err)
	assert.Nil(t, re)
}

func TestNewListenerValidation(t *testing.T) {
	rec := &recorder{}

	_, err := NewListener("", "tok", KindMessage, FilterSpec{}, rec, true)
	assert.ErrorIs(t, err, ErrInvalidListener)

	_, err = NewListener("n1", "tok", "message-edit", FilterSpec{}, rec, true)
	assert.ErrorIs(t, err, ErrInvalidListener)

	_, err = NewListener("n1", "tok", KindMessage, FilterSpec{}, nil, true)
	assert.ErrorIs(t, err, ErrInvalidListener)

	_, err = NewListener("n1", "tok", KindMessage, FilterSpec{Message: &MessageFilter{Pattern: PatternRegex, Value: "["}}, rec, true)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	l, err := NewListener("n1", "tok", KindMessage, FilterSpec{}, rec, true)
	require.NoError(t, err)
	assert.Equal(t, PatternEvery, l.Filter.Message.Pattern)

	l, err = NewListener("n2", "tok", KindRoleCreate, FilterSpec{Message: &MessageFilter{Pattern: PatternExact}}, rec, false)
	require.NoError(t, err)
	assert.Nil(t, l.Filter.Message)
}
