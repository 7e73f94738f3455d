package lexer

// Remove drops every token whose text is one of texts.
func Remove(tokens []Token, texts ...string) []Token {
	drop := make(map[string]bool, len(texts))
	for _, t := range texts {
		drop[t] = true
	}
	out := make([]Token, 0, len(tokens))
	for _, tok := range tokens {
		if !drop[tok.Text] {
			out = append(out, tok)
		}
	}
	return out
}

// StripComments removes every span starting at an open token up to, but not
// including, the next end token.
func StripComments(tokens []Token, open, end string) []Token {
	out := make([]Token, 0, len(tokens))
	inComment := false
	for _, tok := range tokens {
		if inComment {
			if tok.Text == end {
				inComment = false
				out = append(out, tok)
			}
			continue
		}
		if tok.Text == open {
			inComment = true
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Filter prepares a raw assembly token stream for translation: carriage
// returns go first, then ';' comments, then the remaining whitespace.
func Filter(tokens []Token) []Token {
	tokens = Remove(tokens, "\r")
	tokens = StripComments(tokens, ";", "\n")
	return Remove(tokens, " ", "\t", "\r", "\n")
}
