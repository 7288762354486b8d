package template

import (
	"strings"

	"github.com/pkg/errors"
)

type nodeKind int

const (
	nodeLiteral nodeKind = iota // text outside blocks, emitted verbatim
	nodeStmt                    // {% ... }  raw statements
	nodeExpr                    // {{ ... }} expression, stringified
	nodeEscaped                 // {< ... }  expression, HTML-escaped
	nodePartial                 // {( ... )} sub-view by name, same context
)

type node struct {
	kind nodeKind
	text string
}

// scan splits a template into literal spans and code blocks. A block starts
// at a two-char marker ({%, {{, {<, {(). Statement blocks run to the first
// %}, so control flow may open a brace in one block and close it in a later
// one. The three expression kinds end at the brace balancing the opening
// one; symmetric trailing marker chars (}}, >}, )}) are accepted. A '{'
// that starts no marker is literal text. Matching is purely lexical, so a
// stray '}' inside an expression's string literal ends its block.
func scan(src string) ([]node, error) {
	var nodes []node
	lit := 0 // start of the pending literal span
	for i := 0; i < len(src); {
		open := strings.IndexByte(src[i:], '{')
		if open < 0 {
			break
		}
		open += i
		if open+1 >= len(src) {
			break
		}
		var kind nodeKind
		switch src[open+1] {
		case '%':
			kind = nodeStmt
		case '{':
			kind = nodeExpr
		case '<':
			kind = nodeEscaped
		case '(':
			kind = nodePartial
		default:
			i = open + 1
			continue
		}

		var content string
		var end int // index of the block's final byte
		if kind == nodeStmt {
			rel := strings.Index(src[open+2:], "%}")
			if rel < 0 {
				return nil, errors.Errorf("unmatched %q block at offset %d", "{%", open)
			}
			content = src[open+2 : open+2+rel]
			end = open + 2 + rel + 1
		} else {
			closing, ok := matchBrace(src, open)
			if !ok {
				return nil, errors.Errorf("unmatched %q block at offset %d", src[open:open+2], open)
			}
			content = blockContent(kind, src[open+1:closing])
			end = closing
		}

		if open > lit {
			nodes = append(nodes, node{nodeLiteral, src[lit:open]})
		}
		nodes = append(nodes, node{kind, content})
		i = end + 1
		lit = i
	}
	if lit < len(src) {
		nodes = append(nodes, node{nodeLiteral, src[lit:]})
	}
	return nodes, nil
}

// matchBrace returns the index of the brace closing the one at open.
func matchBrace(src string, open int) (int, bool) {
	depth := 0
	for i := open; i < len(src); i++ {
		switch src[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// blockContent strips the marker (and its optional mirror) from the inner
// text of a block. inner runs from just past the opening brace to just
// before the closing one, marker char included.
func blockContent(kind nodeKind, inner string) string {
	switch kind {
	case nodeExpr:
		// inner is itself brace-wrapped: { expr }
		return inner[1 : len(inner)-1]
	case nodePartial:
		// keep the leading paren: "( expr )" is already a valid
		// parenthesized expression; balance it if the mirror is absent.
		if strings.Count(inner, "(") > strings.Count(inner, ")") {
			return inner + ")"
		}
		return inner
	case nodeEscaped:
		return trimMirror(inner[1:], '>')
	}
	return inner
}

func trimMirror(s string, mirror byte) string {
	t := strings.TrimRight(s, " \t\r\n")
	if len(t) > 0 && t[len(t)-1] == mirror {
		return t[:len(t)-1]
	}
	return s
}
