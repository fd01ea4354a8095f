package manifest

import (
	"bytes"
	"fmt"
	"strings"
)

// Generator renders manifests as Lua formulas.
type Generator struct {
	indent string // Indentation string (default: two spaces)
}

// NewGenerator creates a new Lua formula generator.
func NewGenerator() *Generator {
	return &Generator{
		indent: "  ",
	}
}

// Generate renders m as a Lua formula that ParseString reads back into an
// equivalent manifest. The output is deterministic.
func (g *Generator) Generate(m *Manifest) (string, error) {
	if m == nil {
		return "", fmt.Errorf("manifest is nil")
	}

	var buf bytes.Buffer

	buf.WriteString("-- keg formula: ")
	buf.WriteString(m.Name)
	buf.WriteString("\n\n")
	buf.WriteString("formula = {\n")

	g.writeField(&buf, 1, "name", m.Name)
	g.writeField(&buf, 1, "version", m.Version)
	if m.Description != "" {
		g.writeField(&buf, 1, "description", m.Description)
	}
	if m.Homepage != "" {
		g.writeField(&buf, 1, "homepage", m.Homepage)
	}
	buf.WriteString("\n")

	g.writeVariants(&buf, m.Variants)

	if len(m.Conflicts) > 0 {
		g.line(&buf, 1, "conflicts = {")
		for _, c := range m.Conflicts {
			g.line(&buf, 2, quoteLuaString(c)+",")
		}
		g.line(&buf, 1, "},")
		buf.WriteString("\n")
	}

	if len(m.InstallRules) > 0 {
		g.writeRules(&buf, m.InstallRules)
	}

	buf.WriteString("}\n")
	return buf.String(), nil
}

func (g *Generator) writeVariants(buf *bytes.Buffer, variants []Variant) {
	g.line(buf, 1, "variants = {")
	for _, v := range variants {
		g.line(buf, 2, "{")
		if v.OS.IsValid() {
			g.line(buf, 3, "os = OS."+v.OS.String()+",")
		} else {
			g.writeField(buf, 3, "os", v.OS.String())
		}
		g.writeField(buf, 3, "arch", v.Architecture())
		g.writeField(buf, 3, "url", v.URLTemplate)
		g.writeField(buf, 3, "sha256", v.SHA256)
		if v.SignatureURL != "" {
			g.writeField(buf, 3, "signature_url", v.SignatureURL)
		}
		g.line(buf, 2, "},")
	}
	g.line(buf, 1, "},")
	buf.WriteString("\n")
}

func (g *Generator) writeRules(buf *bytes.Buffer, rules []InstallRule) {
	g.line(buf, 1, "install = {")
	for _, r := range rules {
		parts := []string{"from = " + quoteLuaString(r.From)}
		if r.Kind.IsValid() {
			parts = append(parts, "kind = kind."+r.Kind.String())
		} else {
			parts = append(parts, "kind = "+quoteLuaString(r.Kind.String()))
		}
		if r.As != "" {
			parts = append(parts, "as = "+quoteLuaString(r.As))
		}
		g.line(buf, 2, "{ "+strings.Join(parts, ", ")+" },")
	}
	g.line(buf, 1, "},")
}

func (g *Generator) writeField(buf *bytes.Buffer, depth int, key, value string) {
	g.line(buf, depth, key+" = "+quoteLuaString(value)+",")
}

func (g *Generator) line(buf *bytes.Buffer, depth int, s string) {
	buf.WriteString(strings.Repeat(g.indent, depth))
	buf.WriteString(s)
	buf.WriteString("\n")
}

// quoteLuaString quotes a string for Lua, handling special characters.
func quoteLuaString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c < 0x20 || c == 0x7f {
				// Lua 5.1 has no \x escapes, only decimal ones
				fmt.Fprintf(&b, `\%03d`, c)
				continue
			}
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
