package frames

import (
	"strconv"
	"strings"
)

// TokenKind classifies one comma-separated selector token
type TokenKind int

const (
	TokenInvalid TokenKind = iota
	TokenIndex
	TokenRange
)

// Token is the parse result of one selector token
type Token struct {
	Raw   string
	Kind  TokenKind
	Index int
	// Start and End are the range bounds; nil means open
	Start *int
	End   *int
	Err   error
}

// ParseSelector splits s on commas and parses every token.
// Malformed tokens are returned with Kind TokenInvalid and the parse error.
func ParseSelector(s string) []Token {
	raw := strings.Split(strings.TrimSpace(s), ",")
	tokens := make([]Token, 0, len(raw))
	for _, r := range raw {
		tokens = append(tokens, parseToken(r))
	}
	return tokens
}

func parseToken(raw string) Token {
	tok := Token{Raw: raw}
	text := strings.TrimSpace(raw)
	if lo, hi, ok := strings.Cut(text, ":"); ok {
		start, err := optionalInt(lo)
		if err != nil {
			tok.Err = err
			return tok
		}
		end, err := optionalInt(hi)
		if err != nil {
			tok.Err = err
			return tok
		}
		tok.Kind, tok.Start, tok.End = TokenRange, start, end
		return tok
	}
	i, err := strconv.Atoi(text)
	if err != nil {
		tok.Err = err
		return tok
	}
	tok.Kind, tok.Index = TokenIndex, i
	return tok
}

func optionalInt(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// Resolve returns the frame indices the token selects from n frames.
// Ranges follow half-open slice semantics with negative bounds counted from the end;
// a range with both bounds open selects nothing. An index is kept when it is below n,
// and negative indices down to -n count from the end.
func (t Token) Resolve(n int) []int {
	switch t.Kind {
	case TokenIndex:
		switch {
		case t.Index >= 0 && t.Index < n:
			return []int{t.Index}
		case t.Index < 0 && t.Index >= -n:
			return []int{n + t.Index}
		}
	case TokenRange:
		if t.Start == nil && t.End == nil {
			return nil
		}
		start, end := 0, n
		if t.Start != nil {
			start = sliceBound(*t.Start, n)
		}
		if t.End != nil {
			end = sliceBound(*t.End, n)
		}
		var out []int
		for i := start; i < end; i++ {
			out = append(out, i)
		}
		return out
	}
	return nil
}

func sliceBound(i, n int) int {
	if i < 0 {
		i += n
	}
	return min(max(i, 0), n)
}

// Select gathers the frames named by selector, in selector order and with repeats.
// When nothing valid is selected the batch is returned unchanged.
func Select(b *Batch, selector string) *Batch {
	indices := SelectIndices(selector, b.Len())
	if len(indices) == 0 {
		return b
	}
	picked, err := b.Pixels.Gather(frameAxis, indices)
	if err != nil {
		return b
	}
	return &Batch{Pixels: picked}
}

// SelectIndices resolves a selector against n frames
func SelectIndices(selector string, n int) []int {
	var indices []int
	for _, tok := range ParseSelector(selector) {
		indices = append(indices, tok.Resolve(n)...)
	}
	return indices
}
