package reconcile

import (
	"bytes"
	"sort"
	"strings"

	"github.com/emersion/go-ical"
)

// volatileProps change on every write and never count as a difference.
var volatileProps = map[string]bool{
	ical.PropDateTimeStamp: true,
	ical.PropLastModified:  true,
}

// Normalize returns a canonical serialization of cal for comparison.
// DTSTAMP and LAST-MODIFIED are dropped. Properties and parameters are
// written in name order; repeated values keep their order.
func Normalize(cal *ical.Calendar) []byte {
	if cal == nil {
		return nil
	}
	var buf bytes.Buffer
	writeComponent(&buf, cal.Component)
	return buf.Bytes()
}

func writeComponent(buf *bytes.Buffer, comp *ical.Component) {
	buf.WriteString("BEGIN:" + comp.Name + "\n")

	names := make([]string, 0, len(comp.Props))
	for name := range comp.Props {
		if !volatileProps[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		for _, prop := range comp.Props[name] {
			buf.WriteString(name)
			writeParams(buf, prop.Params)
			buf.WriteString(":" + prop.Value + "\n")
		}
	}

	for _, child := range comp.Children {
		writeComponent(buf, child)
	}
	buf.WriteString("END:" + comp.Name + "\n")
}

func writeParams(buf *bytes.Buffer, params ical.Params) {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		buf.WriteString(";" + key + "=" + strings.Join(params[key], ","))
	}
}
