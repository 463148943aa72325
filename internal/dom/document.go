// Package dom provides a small document object model over golang.org/x/net/html
// trees. Text and attribute values are stored verbatim on nodes and escaped by
// the html renderer, so no caller-supplied string is ever parsed as markup.
package dom

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrMissingDocument indicates that a nil document tree was supplied.
var ErrMissingDocument = errors.New("dom: document required")

// Document owns an html tree and the event listeners registered on it.
// A Document is not safe for concurrent use.
type Document struct {
	root              *html.Node
	listeners         map[*html.Node]map[string][]Listener
	documentListeners map[string][]Listener
	defaultValues     map[*html.Node]string
	defaultSelected   map[*html.Node]bool
}

// Parse reads markup and returns the resulting document.
func Parse(reader io.Reader) (*Document, error) {
	root, err := html.Parse(reader)
	if err != nil {
		return nil, err
	}
	return NewDocument(root)
}

// ParseString is Parse over a string.
func ParseString(markup string) (*Document, error) {
	return Parse(strings.NewReader(markup))
}

// NewDocument wraps an existing tree. Current input values and option
// selections become the defaults restored by Element.Reset.
func NewDocument(root *html.Node) (*Document, error) {
	if root == nil {
		return nil, ErrMissingDocument
	}
	document := &Document{
		root:              root,
		listeners:         make(map[*html.Node]map[string][]Listener),
		documentListeners: make(map[string][]Listener),
		defaultValues:     make(map[*html.Node]string),
		defaultSelected:   make(map[*html.Node]bool),
	}
	walk(root, func(node *html.Node) bool {
		if node.Type != html.ElementNode {
			return true
		}
		switch node.DataAtom {
		case atom.Input:
			if value, ok := attr(node, "value"); ok {
				document.defaultValues[node] = value
			}
		case atom.Option:
			if _, ok := attr(node, "selected"); ok {
				document.defaultSelected[node] = true
			}
		}
		return true
	})
	return document, nil
}

// ElementByID returns the first element whose id attribute equals id, or nil.
func (document *Document) ElementByID(id string) *Element {
	if id == "" {
		return nil
	}
	var found *html.Node
	walk(document.root, func(node *html.Node) bool {
		if found != nil {
			return false
		}
		if node.Type == html.ElementNode {
			if value, ok := attr(node, "id"); ok && value == id {
				found = node
				return false
			}
		}
		return true
	})
	return document.wrap(found)
}

// CreateElement returns a detached element with the given tag name.
func (document *Document) CreateElement(tag string) *Element {
	name := strings.ToLower(tag)
	node := &html.Node{
		Type:     html.ElementNode,
		Data:     name,
		DataAtom: atom.Lookup([]byte(name)),
	}
	return document.wrap(node)
}

// Body returns the body element, or nil for fragments without one.
func (document *Document) Body() *Element {
	var found *html.Node
	walk(document.root, func(node *html.Node) bool {
		if found != nil {
			return false
		}
		if node.Type == html.ElementNode && node.DataAtom == atom.Body {
			found = node
			return false
		}
		return true
	})
	return document.wrap(found)
}

// Render writes the document as HTML.
func (document *Document) Render(writer io.Writer) error {
	return html.Render(writer, document.root)
}

// String renders the document, returning an empty string on failure.
func (document *Document) String() string {
	var builder strings.Builder
	if err := document.Render(&builder); err != nil {
		return ""
	}
	return builder.String()
}

func (document *Document) wrap(node *html.Node) *Element {
	if node == nil {
		return nil
	}
	return &Element{node: node, document: document}
}

func walk(node *html.Node, visit func(*html.Node) bool) bool {
	if !visit(node) {
		return false
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if !walk(child, visit) {
			return false
		}
	}
	return true
}

func attr(node *html.Node, key string) (string, bool) {
	for _, attribute := range node.Attr {
		if attribute.Namespace == "" && attribute.Key == key {
			return attribute.Val, true
		}
	}
	return "", false
}
