package verify

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// typingCalls maps flattened call paths to the argument index carrying the
// typed payload. Generated scripts embed the payload as the first argument.
var typingCalls = map[string]int{
	"pyperclip.copy":      0,
	"pyautogui.typewrite": 0,
	"pyautogui.write":     0,
	"keyboard.write":      0,
}

// ExtractTypedLiteral statically parses generated Python code and returns
// the first string literal passed to a known typing call. The code is never
// executed here. A missing literal is not an error; the caller falls back
// to model judging.
func ExtractTypedLiteral(ctx context.Context, code string) (string, bool, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	source := []byte(code)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return "", false, fmt.Errorf("failed to parse generated code: %w", err)
	}
	defer tree.Close()

	var literal string
	var found bool

	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil || node.IsNull() || found {
			return
		}

		if node.Type() == "call" {
			if lit, ok := typedLiteralFromCall(node, source); ok {
				literal = lit
				found = true
				return
			}
		}

		cursor := sitter.NewTreeCursor(node)
		defer cursor.Close()
		if ok := cursor.GoToFirstChild(); ok {
			for {
				walk(cursor.CurrentNode())
				if found {
					return
				}
				if ok := cursor.GoToNextSibling(); !ok {
					break
				}
			}
		}
	}
	walk(tree.RootNode())

	return literal, found, nil
}

// typedLiteralFromCall checks one call node against the known typing calls.
func typedLiteralFromCall(node *sitter.Node, source []byte) (string, bool) {
	callee := node.ChildByFieldName("function")
	argsNode := node.ChildByFieldName("arguments")
	if callee == nil || argsNode == nil {
		return "", false
	}

	path := flattenAttributeChain(callee, source)
	if path == "" {
		return "", false
	}
	argIndex, ok := typingCalls[path]
	if !ok {
		return "", false
	}

	args := positionalArguments(argsNode)
	if argIndex >= len(args) {
		return "", false
	}
	arg := args[argIndex]
	if arg.Type() != "string" {
		// Variable or f-string payloads cannot be matched literally.
		return "", false
	}
	return stringLiteralValue(arg, source), true
}

// flattenAttributeChain renders dotted call targets ("pyautogui.write").
// Anything beyond a simple identifier chain yields an empty path.
func flattenAttributeChain(node *sitter.Node, source []byte) string {
	var parts []string
	current := node
	for {
		if current == nil {
			return ""
		}
		switch current.Type() {
		case "identifier":
			parts = append([]string{current.Content(source)}, parts...)
			return strings.Join(parts, ".")
		case "attribute":
			attr := current.ChildByFieldName("attribute")
			object := current.ChildByFieldName("object")
			if attr == nil || object == nil {
				return ""
			}
			parts = append([]string{attr.Content(source)}, parts...)
			current = object
		default:
			return ""
		}
	}
}

// positionalArguments lists non-keyword arguments of an argument_list node.
func positionalArguments(argsNode *sitter.Node) []*sitter.Node {
	var args []*sitter.Node
	for i := 0; i < int(argsNode.ChildCount()); i++ {
		child := argsNode.Child(i)
		switch child.Type() {
		case "(", ")", ",", "comment", "keyword_argument":
		default:
			args = append(args, child)
		}
	}
	return args
}

// stringLiteralValue returns the unquoted contents of a Python string node.
// Recent python grammars expose string_content children; older ones require
// trimming the prefix and quotes from the raw text.
func stringLiteralValue(node *sitter.Node, source []byte) string {
	var sb strings.Builder
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "string_content" {
			sb.WriteString(child.Content(source))
		}
	}
	if sb.Len() > 0 {
		return sb.String()
	}

	raw := node.Content(source)
	raw = strings.TrimLeft(raw, "rRbBuUfF")
	for _, q := range []string{`"""`, "'''", `"`, "'"} {
		if strings.HasPrefix(raw, q) && strings.HasSuffix(raw, q) && len(raw) >= 2*len(q) {
			return raw[len(q) : len(raw)-len(q)]
		}
	}
	return raw
}
