package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element is a handle on an element node. Several handles may refer to the
// same node; compare them with Is.
type Element struct {
	node     *html.Node
	document *Document
}

// Matcher reports whether an element satisfies a selector.
type Matcher func(*Element) bool

// ByClass matches elements carrying class.
func ByClass(class string) Matcher {
	return func(element *Element) bool {
		return element.HasClass(class)
	}
}

// ByTag matches elements with the given tag name.
func ByTag(tag string) Matcher {
	name := strings.ToLower(tag)
	return func(element *Element) bool {
		return element.node.Data == name
	}
}

// Is reports whether both handles refer to the same node.
func (element *Element) Is(other *Element) bool {
	if element == nil || other == nil {
		return element == other
	}
	return element.node == other.node
}

// TagName returns the lower-case tag name.
func (element *Element) TagName() string {
	return element.node.Data
}

// ID returns the id attribute.
func (element *Element) ID() string {
	value, _ := attr(element.node, "id")
	return value
}

// Attr returns the attribute value and whether it is present.
func (element *Element) Attr(key string) (string, bool) {
	return attr(element.node, key)
}

// SetAttr sets an attribute. The value is stored verbatim and escaped on render.
func (element *Element) SetAttr(key, value string) {
	for index, attribute := range element.node.Attr {
		if attribute.Namespace == "" && attribute.Key == key {
			element.node.Attr[index].Val = value
			return
		}
	}
	element.node.Attr = append(element.node.Attr, html.Attribute{Key: key, Val: value})
}

// RemoveAttr deletes an attribute if present.
func (element *Element) RemoveAttr(key string) {
	kept := element.node.Attr[:0]
	for _, attribute := range element.node.Attr {
		if attribute.Namespace == "" && attribute.Key == key {
			continue
		}
		kept = append(kept, attribute)
	}
	element.node.Attr = kept
}

// Dataset returns the value of the data-name attribute.
func (element *Element) Dataset(name string) string {
	value, _ := attr(element.node, "data-"+name)
	return value
}

// SetDataset stores value in the data-name attribute.
func (element *Element) SetDataset(name, value string) {
	element.SetAttr("data-"+name, value)
}

// ClassList returns the space separated classes.
func (element *Element) ClassList() []string {
	value, _ := attr(element.node, "class")
	return strings.Fields(value)
}

// SetClassName replaces the class attribute.
func (element *Element) SetClassName(className string) {
	element.SetAttr("class", className)
}

// HasClass reports whether class is present.
func (element *Element) HasClass(class string) bool {
	for _, existing := range element.ClassList() {
		if existing == class {
			return true
		}
	}
	return false
}

// AddClass appends class unless already present.
func (element *Element) AddClass(class string) {
	if element.HasClass(class) {
		return
	}
	element.SetClassName(strings.Join(append(element.ClassList(), class), " "))
}

// RemoveClass removes every occurrence of class.
func (element *Element) RemoveClass(class string) {
	classes := element.ClassList()
	kept := classes[:0]
	for _, existing := range classes {
		if existing != class {
			kept = append(kept, existing)
		}
	}
	element.SetClassName(strings.Join(kept, " "))
}

// Parent returns the parent element, or nil at the top of the tree.
func (element *Element) Parent() *Element {
	parent := element.node.Parent
	if parent == nil || parent.Type != html.ElementNode {
		return nil
	}
	return element.document.wrap(parent)
}

// AppendChild moves child to the end of this element's children.
func (element *Element) AppendChild(child *Element) {
	if child.node.Parent != nil {
		child.node.Parent.RemoveChild(child.node)
	}
	element.node.AppendChild(child.node)
}

// AppendText appends a text node holding text. Empty text adds nothing.
func (element *Element) AppendText(text string) {
	if text == "" {
		return
	}
	element.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// SetText replaces all children with a single text node.
func (element *Element) SetText(text string) {
	element.RemoveChildren()
	element.AppendText(text)
}

// RemoveChildren detaches every child node.
func (element *Element) RemoveChildren() {
	for child := element.node.FirstChild; child != nil; {
		next := child.NextSibling
		element.node.RemoveChild(child)
		child = next
	}
}

// Children returns the element children in order.
func (element *Element) Children() []*Element {
	children := make([]*Element, 0)
	for child := element.node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode {
			children = append(children, element.document.wrap(child))
		}
	}
	return children
}

// TextContent concatenates the text of every descendant text node.
func (element *Element) TextContent() string {
	var builder strings.Builder
	walk(element.node, func(node *html.Node) bool {
		if node.Type == html.TextNode {
			builder.WriteString(node.Data)
		}
		return true
	})
	return builder.String()
}

// Closest returns the nearest element, starting with this one, that matches.
func (element *Element) Closest(match Matcher) *Element {
	for node := element.node; node != nil; node = node.Parent {
		if node.Type != html.ElementNode {
			continue
		}
		candidate := element.document.wrap(node)
		if match(candidate) {
			return candidate
		}
	}
	return nil
}

// QueryAll returns matching descendants in document order.
func (element *Element) QueryAll(match Matcher) []*Element {
	matches := make([]*Element, 0)
	for child := element.node.FirstChild; child != nil; child = child.NextSibling {
		walk(child, func(node *html.Node) bool {
			if node.Type == html.ElementNode {
				candidate := element.document.wrap(node)
				if match(candidate) {
					matches = append(matches, candidate)
				}
			}
			return true
		})
	}
	return matches
}

// Query returns the first matching descendant, or nil.
func (element *Element) Query(match Matcher) *Element {
	matches := element.QueryAll(match)
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

// Value returns the form value of an input, select or textarea.
func (element *Element) Value() string {
	switch element.node.DataAtom {
	case atom.Select:
		options := element.QueryAll(ByTag("option"))
		for _, option := range options {
			if _, selected := option.Attr("selected"); selected {
				return option.optionValue()
			}
		}
		if len(options) > 0 {
			return options[0].optionValue()
		}
		return ""
	case atom.Textarea:
		return element.TextContent()
	case atom.Option:
		return element.optionValue()
	default:
		value, _ := element.Attr("value")
		return value
	}
}

// SetValue updates the form value. For a select the option with a matching
// value becomes the only selected one.
func (element *Element) SetValue(value string) {
	switch element.node.DataAtom {
	case atom.Select:
		matched := false
		for _, option := range element.QueryAll(ByTag("option")) {
			if !matched && option.optionValue() == value {
				option.SetAttr("selected", "")
				matched = true
				continue
			}
			option.RemoveAttr("selected")
		}
	case atom.Textarea:
		element.SetText(value)
	default:
		element.SetAttr("value", value)
	}
}

// Reset restores every control under a form to its parsed default.
func (element *Element) Reset() {
	for _, control := range element.QueryAll(func(candidate *Element) bool {
		switch candidate.node.DataAtom {
		case atom.Input, atom.Option:
			return true
		}
		return false
	}) {
		switch control.node.DataAtom {
		case atom.Input:
			if control.inputType() == "submit" || control.inputType() == "button" {
				continue
			}
			if value, ok := element.document.defaultValues[control.node]; ok {
				control.SetAttr("value", value)
			} else {
				control.RemoveAttr("value")
			}
		case atom.Option:
			if element.document.defaultSelected[control.node] {
				control.SetAttr("selected", "")
			} else {
				control.RemoveAttr("selected")
			}
		}
	}
}

// AddEventListener registers listener for events of eventType reaching this element.
func (element *Element) AddEventListener(eventType string, listener Listener) {
	byType := element.document.listeners[element.node]
	if byType == nil {
		byType = make(map[string][]Listener)
		element.document.listeners[element.node] = byType
	}
	byType[eventType] = append(byType[eventType], listener)
}

func (element *Element) optionValue() string {
	if value, ok := element.Attr("value"); ok {
		return value
	}
	return element.TextContent()
}

func (element *Element) inputType() string {
	value, _ := element.Attr("type")
	return strings.ToLower(value)
}
