package manifest

import (
	"context"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultEvalTimeout bounds the evaluation of one formula.
const DefaultEvalTimeout = 5 * time.Second

// Parser evaluates Lua formulas into manifests.
type Parser struct {
	timeout time.Duration
}

// NewParser creates a new formula parser.
func NewParser() *Parser {
	return &Parser{timeout: DefaultEvalTimeout}
}

// ParseError represents a manifest parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua or decoder error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// ParseString parses a Lua formula from a string. The returned manifest is
// normalized and validated.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Manifest, error) {
	if len(luaCode) > MaxManifestSize {
		return nil, &ParseError{
			Message: "formula too large",
			Detail:  fmt.Sprintf("%d bytes, maximum is %d", len(luaCode), MaxManifestSize),
		}
	}

	timeout := p.timeout
	if timeout <= 0 {
		timeout = DefaultEvalTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if err := L.DoString(luaCode); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("formula evaluation interrupted: %w", ctx.Err())
		}
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	m, err := extractManifest(L)
	if err != nil {
		return nil, err
	}

	m.Normalize()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// extractManifest reads the global "formula" table.
func extractManifest(L *lua.LState) (*Manifest, error) {
	formulaVal := L.GetGlobal("formula")
	table, ok := formulaVal.(*lua.LTable)
	if !ok {
		return nil, &ParseError{
			Message: "missing or invalid 'formula' table",
			Detail:  fmt.Sprintf("expected table, got %s", formulaVal.Type()),
		}
	}

	m := &Manifest{}
	var err error

	if m.Name, err = stringField(table, "name", "name"); err != nil {
		return nil, err
	}
	if m.Version, err = stringField(table, "version", "version"); err != nil {
		return nil, err
	}
	// "desc" is the Homebrew spelling
	if m.Description, err = stringField(table, "description", "description"); err != nil {
		return nil, err
	}
	if m.Description == "" {
		if m.Description, err = stringField(table, "desc", "desc"); err != nil {
			return nil, err
		}
	}
	if m.Homepage, err = stringField(table, "homepage", "homepage"); err != nil {
		return nil, err
	}

	if m.Variants, err = extractVariants(table.RawGetString("variants")); err != nil {
		return nil, err
	}

	conflictsVal := table.RawGetString("conflicts")
	if conflictsVal == lua.LNil {
		conflictsVal = table.RawGetString("conflicts_with")
	}
	if m.Conflicts, err = stringList(conflictsVal, "conflicts"); err != nil {
		return nil, err
	}

	rulesVal := table.RawGetString("install")
	if rulesVal == lua.LNil {
		rulesVal = table.RawGetString("install_rules")
	}
	if m.InstallRules, err = extractRules(rulesVal); err != nil {
		return nil, err
	}

	return m, nil
}

func extractVariants(val lua.LValue) ([]Variant, error) {
	if val == lua.LNil {
		return nil, nil
	}
	items, err := sequence(val, "variants")
	if err != nil {
		return nil, err
	}

	variants := make([]Variant, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("variants[%d]", i+1)
		t, ok := item.(*lua.LTable)
		if !ok {
			return nil, typeError(field, "table", item)
		}

		var v Variant
		osName, err := stringField(t, "os", field+".os")
		if err != nil {
			return nil, err
		}
		v.OS = OS(osName)

		if v.Arch, err = stringField(t, "arch", field+".arch"); err != nil {
			return nil, err
		}
		if v.URLTemplate, err = stringField(t, "url", field+".url"); err != nil {
			return nil, err
		}
		if v.URLTemplate == "" {
			if v.URLTemplate, err = stringField(t, "url_template", field+".url_template"); err != nil {
				return nil, err
			}
		}
		if v.SHA256, err = stringField(t, "sha256", field+".sha256"); err != nil {
			return nil, err
		}
		if v.SignatureURL, err = stringField(t, "signature_url", field+".signature_url"); err != nil {
			return nil, err
		}

		variants = append(variants, v)
	}
	return variants, nil
}

func extractRules(val lua.LValue) ([]InstallRule, error) {
	if val == lua.LNil {
		return nil, nil
	}
	items, err := sequence(val, "install")
	if err != nil {
		return nil, err
	}

	rules := make([]InstallRule, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("install[%d]", i+1)
		t, ok := item.(*lua.LTable)
		if !ok {
			return nil, typeError(field, "table", item)
		}

		var r InstallRule
		if r.From, err = stringField(t, "from", field+".from"); err != nil {
			return nil, err
		}
		kind, err := stringField(t, "kind", field+".kind")
		if err != nil {
			return nil, err
		}
		r.Kind = DestinationKind(kind)
		if r.As, err = stringField(t, "as", field+".as"); err != nil {
			return nil, err
		}

		rules = append(rules, r)
	}
	return rules, nil
}

// sequence returns the array part of a Lua table in index order.
func sequence(val lua.LValue, field string) ([]lua.LValue, error) {
	t, ok := val.(*lua.LTable)
	if !ok {
		return nil, typeError(field, "table", val)
	}
	n := t.Len()
	items := make([]lua.LValue, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, t.RawGetInt(i))
	}
	return items, nil
}

// stringList reads an array of strings. Nil entries (from conditionals like
// `cond and "x" or nil`) are skipped.
func stringList(val lua.LValue, field string) ([]string, error) {
	if val == lua.LNil {
		return nil, nil
	}
	if s, ok := val.(lua.LString); ok {
		return []string{string(s)}, nil
	}
	items, err := sequence(val, field)
	if err != nil {
		return nil, err
	}
	var out []string
	for i, item := range items {
		switch v := item.(type) {
		case lua.LString:
			out = append(out, string(v))
		default:
			if item == lua.LNil {
				continue
			}
			return nil, typeError(fmt.Sprintf("%s[%d]", field, i+1), "string", item)
		}
	}
	return out, nil
}

// stringField reads an optional string field. Absent fields yield "".
func stringField(t *lua.LTable, key, field string) (string, error) {
	val := t.RawGetString(key)
	switch v := val.(type) {
	case lua.LString:
		return strings.TrimSpace(string(v)), nil
	default:
		if val == lua.LNil {
			return "", nil
		}
		return "", typeError(field, "string", val)
	}
}

func typeError(field, want string, got lua.LValue) error {
	return &ParseError{
		Message: "invalid formula field " + field,
		Detail:  fmt.Sprintf("expected %s, got %s", want, got.Type()),
	}
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	if parseErr, ok := err.(*ParseError); ok {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
