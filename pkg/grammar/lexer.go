package grammar

import (
	"fmt"

	"github.com/alecthomas/participle/v2/lexer"
)

// routeLexer splits route text into words. "#" starts a comment that runs
// to the end of the line.
var routeLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Newline", Pattern: `\r?\n`},
	{Name: "Whitespace", Pattern: `[ \t\r]+`},
	{Name: "Word", Pattern: `[^\s#]+`},
})

var (
	wordToken    = routeLexer.Symbols()["Word"]
	newlineToken = routeLexer.Symbols()["Newline"]
)

// Line is the token list of one non-empty input line.
type Line struct {
	Number int
	Tokens []string
}

// Lines splits text into per-line token lists, dropping comments and lines
// without tokens. name is used in error positions.
func Lines(name, text string) ([]Line, error) {
	lex, err := routeLexer.LexString(name, text)
	if err != nil {
		return nil, fmt.Errorf("lex %s: %w", name, err)
	}
	var (
		out []Line
		cur Line
	)
	flush := func() {
		if len(cur.Tokens) > 0 {
			out = append(out, cur)
		}
		cur = Line{}
	}
	for {
		tok, err := lex.Next()
		if err != nil {
			return nil, fmt.Errorf("lex %s: %w", name, err)
		}
		switch {
		case tok.EOF():
			flush()
			return out, nil
		case tok.Type == newlineToken:
			flush()
		case tok.Type == wordToken:
			if len(cur.Tokens) == 0 {
				cur.Number = tok.Pos.Line
			}
			cur.Tokens = append(cur.Tokens, tok.Value)
		}
	}
}

// Tokenize returns the words of text across all lines.
func Tokenize(text string) ([]string, error) {
	lines, err := Lines("", text)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, l := range lines {
		out = append(out, l.Tokens...)
	}
	return out, nil
}
