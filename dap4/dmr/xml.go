package dmr

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Namespace is the XML namespace of DAP4 DMR documents.
const Namespace = "http://xml.opendap.org/ns/DAP/4.0#"

// WriteXML writes ds to w as a DMR document.
func WriteXML(w io.Writer, ds *Dataset) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("writing DMR header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	x := &xmlWriter{enc: enc}
	start := x.start("Dataset",
		"name", ds.name,
		"dapVersion", ds.DapVersion,
		"dmrVersion", ds.DMRVersion,
		"xmlns", Namespace,
	)
	x.groupBody(&ds.Group)
	x.end(start)
	if x.err != nil {
		return fmt.Errorf("writing DMR: %w", x.err)
	}
	if err := enc.Flush(); err != nil {
		return fmt.Errorf("flushing DMR: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// xmlWriter keeps the first encoding error so element emission reads
// straight through.
type xmlWriter struct {
	enc *xml.Encoder
	err error
}

func (x *xmlWriter) token(t xml.Token) {
	if x.err == nil {
		x.err = x.enc.EncodeToken(t)
	}
}

func (x *xmlWriter) start(name string, attrs ...string) xml.StartElement {
	se := xml.StartElement{Name: xml.Name{Local: name}}
	for i := 0; i+1 < len(attrs); i += 2 {
		se.Attr = append(se.Attr, xml.Attr{Name: xml.Name{Local: attrs[i]}, Value: attrs[i+1]})
	}
	x.token(se)
	return se
}

func (x *xmlWriter) end(se xml.StartElement) {
	x.token(se.End())
}

func (x *xmlWriter) empty(name string, attrs ...string) {
	x.end(x.start(name, attrs...))
}

func (x *xmlWriter) groupBody(g *Group) {
	for _, d := range g.dims {
		x.empty("Dimension", "name", d.name, "size", strconv.FormatInt(d.size, 10))
	}
	for _, v := range g.vars {
		x.variable(v)
	}
	for _, sub := range g.groups {
		se := x.start("Group", "name", sub.name)
		x.groupBody(sub)
		x.end(se)
	}
	x.attributes(g.attrs)
}

func (x *xmlWriter) variable(v *Variable) {
	var se xml.StartElement
	switch v.sort {
	case SortAtomic:
		se = x.start(v.typ.String(), "name", v.name)
	case SortStructure:
		se = x.start("Structure", "name", v.name)
	case SortSequence:
		se = x.start("Sequence", "name", v.name)
	default:
		x.err = fmt.Errorf("variable %s has sort %v", v.FQN(), v.sort)
		return
	}
	for _, f := range v.fields {
		x.variable(f)
	}
	for _, d := range v.dims {
		if d.Shared() {
			x.empty("Dim", "name", d.FQN())
		} else {
			x.empty("Dim", "size", strconv.FormatInt(d.size, 10))
		}
	}
	x.attributes(v.attrs)
	x.end(se)
}

func (x *xmlWriter) attributes(attrs []Attribute) {
	for _, a := range attrs {
		se := x.start("Attribute", "name", a.Name, "type", a.Type.String())
		for _, val := range a.Values {
			vse := x.start("Value")
			x.token(xml.CharData(val))
			x.end(vse)
		}
		x.end(se)
	}
}

// ReadXML parses a DMR document of the form WriteXML produces and returns
// the finished dataset. Dim references are fully qualified names, or
// names resolved from the enclosing group outwards.
func ReadXML(r io.Reader) (*Dataset, error) {
	x := &xmlReader{dec: xml.NewDecoder(r)}
	tok, err := x.next()
	if err != nil {
		return nil, fmt.Errorf("reading DMR: %w", err)
	}
	se, ok := tok.(xml.StartElement)
	if !ok || se.Name.Local != "Dataset" {
		return nil, fmt.Errorf("reading DMR: document does not start with <Dataset>")
	}

	x.ds = NewDataset(attrOf(se, "name"))
	if v := attrOf(se, "dapVersion"); v != "" {
		x.ds.DapVersion = v
	}
	if v := attrOf(se, "dmrVersion"); v != "" {
		x.ds.DMRVersion = v
	}
	if err := x.group(x.ds.Root()); err != nil {
		return nil, fmt.Errorf("reading DMR: %w", err)
	}
	if err := x.ds.Finish(); err != nil {
		return nil, err
	}
	return x.ds, nil
}

type xmlReader struct {
	dec *xml.Decoder
	ds  *Dataset
}

// next returns the next start or end element.
func (x *xmlReader) next() (xml.Token, error) {
	for {
		tok, err := x.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		switch tok.(type) {
		case xml.StartElement, xml.EndElement:
			return tok, nil
		}
	}
}

func attrOf(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func (x *xmlReader) group(g *Group) error {
	for {
		tok, err := x.next()
		if err != nil {
			return err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			return nil
		}
		switch se.Name.Local {
		case "Dimension":
			size, err := strconv.ParseInt(attrOf(se, "size"), 10, 64)
			if err != nil {
				return fmt.Errorf("dimension %s: %w", attrOf(se, "name"), err)
			}
			g.AddDimension(attrOf(se, "name"), size)
			if err := x.dec.Skip(); err != nil {
				return err
			}
		case "Group":
			if err := x.group(g.AddGroup(attrOf(se, "name"))); err != nil {
				return err
			}
		case "Attribute":
			a, err := x.attribute(se)
			if err != nil {
				return err
			}
			g.AddAttribute(a.Name, a.Type, a.Values...)
		default:
			v, err := x.variable(g, se)
			if err != nil {
				return err
			}
			g.AddVariable(v)
		}
	}
}

func (x *xmlReader) variable(g *Group, se xml.StartElement) (*Variable, error) {
	name := attrOf(se, "name")
	sort := SortAtomic
	var typ AtomicType
	switch se.Name.Local {
	case "Structure":
		sort = SortStructure
	case "Sequence":
		sort = SortSequence
	default:
		t, err := ParseAtomicType(se.Name.Local)
		if err != nil {
			return nil, fmt.Errorf("unexpected element <%s>", se.Name.Local)
		}
		typ = t
	}

	var (
		dims   []*Dimension
		fields []*Variable
		attrs  []Attribute
	)
	for {
		tok, err := x.next()
		if err != nil {
			return nil, err
		}
		child, ok := tok.(xml.StartElement)
		if !ok {
			break
		}
		switch child.Name.Local {
		case "Dim":
			d, err := x.dimension(g, child)
			if err != nil {
				return nil, fmt.Errorf("variable %s: %w", name, err)
			}
			dims = append(dims, d)
			if err := x.dec.Skip(); err != nil {
				return nil, err
			}
		case "Attribute":
			a, err := x.attribute(child)
			if err != nil {
				return nil, err
			}
			attrs = append(attrs, a)
		default:
			if sort == SortAtomic {
				return nil, fmt.Errorf("atomic variable %s has member <%s>", name, child.Name.Local)
			}
			f, err := x.variable(g, child)
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		}
	}

	var v *Variable
	switch sort {
	case SortStructure:
		v = NewStructure(name, fields, dims...)
	case SortSequence:
		v = NewSequence(name, fields, dims...)
	default:
		v = NewAtomic(name, typ, dims...)
	}
	v.attrs = attrs
	return v, nil
}

func (x *xmlReader) dimension(g *Group, se xml.StartElement) (*Dimension, error) {
	ref := attrOf(se, "name")
	if ref == "" {
		size, err := strconv.ParseInt(attrOf(se, "size"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("anonymous dimension: %w", err)
		}
		return Anon(size), nil
	}

	var d *Dimension
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		owner := x.ds.Root()
		for _, name := range SplitPath(ref[:i]) {
			if owner = owner.Subgroup(name); owner == nil {
				break
			}
		}
		if owner != nil {
			d = owner.Dimension(ref[i+1:])
		}
	} else {
		d = g.ResolveDimension(ref)
	}
	if d == nil {
		return nil, fmt.Errorf("dimension %s is not declared", ref)
	}
	return d, nil
}

func (x *xmlReader) attribute(se xml.StartElement) (Attribute, error) {
	a := Attribute{Name: attrOf(se, "name"), Type: String}
	if t := attrOf(se, "type"); t != "" {
		var err error
		if a.Type, err = ParseAtomicType(t); err != nil {
			return a, fmt.Errorf("attribute %s: %w", a.Name, err)
		}
	}
	for {
		tok, err := x.next()
		if err != nil {
			return a, err
		}
		child, ok := tok.(xml.StartElement)
		if !ok {
			return a, nil
		}
		if child.Name.Local != "Value" {
			return a, fmt.Errorf("attribute %s has member <%s>", a.Name, child.Name.Local)
		}
		var val string
		if err := x.dec.DecodeElement(&val, &child); err != nil {
			return a, fmt.Errorf("attribute %s: %w", a.Name, err)
		}
		a.Values = append(a.Values, val)
	}
}
