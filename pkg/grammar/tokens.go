package grammar

import (
	"github.com/emirpasic/gods/lists/arraylist"
)

// TokenStream is the mutable, ordered token list a parse works on.
// Segments remove what they claim; whatever is left is the remainder.
type TokenStream struct {
	list *arraylist.List
}

// NewTokenStream copies tokens into a new stream.
func NewTokenStream(tokens []string) *TokenStream {
	l := arraylist.New()
	for _, t := range tokens {
		l.Add(t)
	}
	return &TokenStream{list: l}
}

// Len returns the number of tokens left.
func (s *TokenStream) Len() int {
	return s.list.Size()
}

// Empty reports whether no tokens are left.
func (s *TokenStream) Empty() bool {
	return s.list.Empty()
}

// PeekFirst returns the head token without removing it.
func (s *TokenStream) PeekFirst() (string, error) {
	tok, ok := s.At(0)
	if !ok {
		return "", ErrEmptyStream
	}
	return tok, nil
}

// RemoveFirst removes and returns the head token.
func (s *TokenStream) RemoveFirst() (string, error) {
	return s.RemoveAt(0)
}

// RemoveAt removes and returns the token at index i.
func (s *TokenStream) RemoveAt(i int) (string, error) {
	tok, ok := s.At(i)
	if !ok {
		return "", ErrEmptyStream
	}
	s.list.Remove(i)
	return tok, nil
}

// At returns the token at index i.
func (s *TokenStream) At(i int) (string, bool) {
	v, ok := s.list.Get(i)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Index returns the position of the first token equal to tok at or after
// from, or -1.
func (s *TokenStream) Index(tok string, from int) int {
	for i := from; i < s.list.Size(); i++ {
		if v, _ := s.At(i); v == tok {
			return i
		}
	}
	return -1
}

// Contains reports whether tok is present.
func (s *TokenStream) Contains(tok string) bool {
	return s.list.Contains(tok)
}

// Snapshot returns an independent copy of the remaining tokens.
func (s *TokenStream) Snapshot() []string {
	out := make([]string, 0, s.list.Size())
	for _, v := range s.list.Values() {
		out = append(out, v.(string))
	}
	return out
}
