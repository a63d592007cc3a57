package xml

import (
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

var (
	xmlDeclRe   = regexp.MustCompile(`<\?xml[^>]*\?>`)
	interTagRe  = regexp.MustCompile(`>\s+<`)
	selfCloseRe = regexp.MustCompile(`\s+/>`)
)

// normalizeXML removes whitespace differences and the XML declaration for
// test comparisons.
func normalizeXML(s string) string {
	s = xmlDeclRe.ReplaceAllString(s, "")
	s = interTagRe.ReplaceAllString(s, "><")
	s = selfCloseRe.ReplaceAllString(s, "/>")
	return strings.TrimSpace(s)
}

// docString serializes doc for assertions.
func docString(doc *etree.Document) string {
	s, err := doc.WriteToString()
	if err != nil {
		panic(err)
	}
	return normalizeXML(s)
}
