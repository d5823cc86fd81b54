package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText trims and collapses whitespace and strips non-printable runes.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.Trim(s, " \t\n")
	return innerWhitespace.ReplaceAllString(s, " ")
}

// WalkText calls fn for every text node under root, skipping the contents
// of script and style elements.
func WalkText(root *html.Node, fn func(text string)) {
	if root == nil {
		return
	}
	if root.Type == html.ElementNode && (root.Data == "script" || root.Data == "style") {
		return
	}
	if root.Type == html.TextNode {
		fn(root.Data)
		return
	}
	child := root.FirstChild
	for child != nil {
		WalkText(child, fn)
		child = child.NextSibling
	}
}
