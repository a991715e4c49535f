// Package rst encodes and decodes the BND2 resource string table: a small
// XML side table mapping 32-bit file IDs to human-readable name/type pairs.
//
// Decoding goes through encoding/xml, which is plenty for a flat,
// attribute-only document. Encoding is hand-written instead of xml.Marshal:
// the on-disk form requires an exact attribute order, tab indentation, no
// XML declaration, and self-closing elements with no space before "/>" —
// control encoding/xml's Marshal does not expose.
package rst

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
)

// Resource is one <Resource id=".." type=".." name=".."/> entry.
type Resource struct {
	ID   uint32
	Type string
	Name string
}

type xmlTable struct {
	XMLName   xml.Name `xml:"ResourceStringTable"`
	Resources []xmlResource `xml:"Resource"`
}

type xmlResource struct {
	ID   string `xml:"id,attr"`
	Type string `xml:"type,attr"`
	Name string `xml:"name,attr"`
}

// Decode parses a <ResourceStringTable> document. The id attribute is
// parsed case-insensitively.
func Decode(doc []byte) ([]Resource, error) {
	var table xmlTable
	if err := xml.Unmarshal(doc, &table); err != nil {
		return nil, fmt.Errorf("rst: decode: %w", err)
	}
	out := make([]Resource, 0, len(table.Resources))
	for _, r := range table.Resources {
		id, err := strconv.ParseUint(r.ID, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("rst: decode: invalid id attribute %q: %w", r.ID, err)
		}
		out = append(out, Resource{ID: uint32(id), Type: r.Type, Name: r.Name})
	}
	return out, nil
}

// Encode serializes resources (which need not be pre-sorted) into the
// on-disk form: root ResourceStringTable, one tab-indented Resource element
// per entry in ascending ID order, id as 8-digit lowercase hex, no XML
// declaration, self-closing with no space before "/>". The result does not
// include the NUL terminator Save writes after it.
func Encode(resources []Resource) []byte {
	sorted := make([]Resource, len(resources))
	copy(sorted, resources)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var buf bytes.Buffer
	buf.WriteString("<ResourceStringTable>\n")
	for _, r := range sorted {
		fmt.Fprintf(&buf, "\t<Resource id=\"%08x\" type=\"%s\" name=\"%s\"/>\n",
			r.ID, escapeAttr(r.Type), escapeAttr(r.Name))
	}
	buf.WriteString("</ResourceStringTable>")
	return buf.Bytes()
}

// escapeAttr escapes the handful of characters that would otherwise break
// attribute-value well-formedness. Resource names/types are asset paths and
// engine type tags; none of the retrieval pack's samples contain anything
// beyond ASCII identifiers, but escaping keeps Encode honest for arbitrary
// input instead of assuming it.
func escapeAttr(s string) string {
	var buf bytes.Buffer
	for _, r := range s {
		switch r {
		case '&':
			buf.WriteString("&amp;")
		case '"':
			buf.WriteString("&quot;")
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		default:
			buf.WriteRune(r)
		}
	}
	return buf.String()
}
