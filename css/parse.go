package css

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// ParseStream reads stylesheet text from r and appends its rules to the
// sheet. Parsing is single-pass and tolerant: malformed constructs are
// skipped and parsing resumes at the next rule boundary. A truncated
// stream is not an error; complete declarations read before the cut are
// kept.
func (s *Sheet) ParseStream(r io.Reader) error {
	br := bufio.NewReader(r)
	before := len(s.rules)
	for {
		sel, delim, err := readToken(br, "{;")
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("css: read: %w", err)
		}
		if delim == ';' {
			// A statement without a block, such as @import or @charset.
			continue
		}

		selector := strings.TrimSpace(sel)
		if strings.HasPrefix(selector, "@") {
			if err := skipBlock(br); err != nil {
				if err == io.EOF {
					break
				}
				return fmt.Errorf("css: read: %w", err)
			}
			continue
		}

		decls, err := readDecls(br)
		if selector != "" && len(decls) > 0 {
			for _, one := range splitSelectors(selector) {
				s.rules = append(s.rules, Rule{Selector: one, Decls: decls})
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("css: read: %w", err)
		}
	}
	s.log.Debug("parsed stylesheet", zap.Int("rules", len(s.rules)-before))
	return nil
}

// readDecls consumes a declaration block up to its closing brace.
func readDecls(br *bufio.Reader) ([]Decl, error) {
	var decls []Decl
	for {
		prop, delim, err := readToken(br, ":;}")
		if err != nil {
			return decls, err
		}
		switch delim {
		case '}':
			return decls, nil
		case ';':
			// Property without a value; drop it.
			continue
		}

		val, vdelim, err := readToken(br, ";}")
		if err != nil {
			// The value never terminated; drop the cut declaration.
			return decls, err
		}
		p, v := strings.TrimSpace(prop), strings.TrimSpace(val)
		if p != "" && v != "" {
			decls = append(decls, Decl{Property: p, Value: v})
		}
		if vdelim == '}' {
			return decls, nil
		}
	}
}

// skipBlock consumes a brace-balanced block whose opening brace has
// already been read.
func skipBlock(br *bufio.Reader) error {
	depth := 1
	for depth > 0 {
		_, delim, err := readToken(br, "{}")
		if err != nil {
			return err
		}
		if delim == '{' {
			depth++
		} else {
			depth--
		}
	}
	return nil
}

// readToken reads bytes until one of the stop bytes appears outside a
// comment, quoted string or parenthesized term. The stop byte is
// consumed and returned. Comments are dropped from the returned text.
func readToken(br *bufio.Reader, stops string) (string, byte, error) {
	var b strings.Builder
	parens := 0
	for {
		c, err := br.ReadByte()
		if err != nil {
			return b.String(), 0, err
		}
		switch {
		case c == '/' && peekByte(br) == '*':
			br.ReadByte()
			if err := skipComment(br); err != nil {
				return b.String(), 0, err
			}
			continue
		case c == '"' || c == '\'':
			b.WriteByte(c)
			if err := copyString(br, &b, c); err != nil {
				return b.String(), 0, err
			}
			continue
		case c == '(':
			parens++
		case c == ')':
			if parens > 0 {
				parens--
			}
		}
		if parens == 0 && strings.IndexByte(stops, c) >= 0 {
			return b.String(), c, nil
		}
		b.WriteByte(c)
	}
}

// skipComment consumes a comment body after its opening marker.
func skipComment(br *bufio.Reader) error {
	for {
		c, err := br.ReadByte()
		if err != nil {
			return err
		}
		if c == '*' && peekByte(br) == '/' {
			br.ReadByte()
			return nil
		}
	}
}

// copyString copies a quoted string body including its closing quote,
// honoring backslash escapes.
func copyString(br *bufio.Reader, b *strings.Builder, quote byte) error {
	for {
		c, err := br.ReadByte()
		if err != nil {
			return err
		}
		b.WriteByte(c)
		if c == '\\' {
			esc, err := br.ReadByte()
			if err != nil {
				return err
			}
			b.WriteByte(esc)
			continue
		}
		if c == quote {
			return nil
		}
	}
}

func peekByte(br *bufio.Reader) byte {
	head, err := br.Peek(1)
	if err != nil {
		return 0
	}
	return head[0]
}

// splitSelectors breaks a selector group on top-level commas.
func splitSelectors(selector string) []string {
	parts := strings.Split(selector, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
