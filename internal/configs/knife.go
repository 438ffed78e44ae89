package configs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/PolarWolf314/pantry/internal/utils"
)

// DecodeKnife parses knife-style declarations. Only the subset of Ruby found in
// knife configuration files is understood: option calls with literal values,
// knife[:key] assignments, local variables, string interpolation and the
// File.join, File.dirname, File.expand_path and ENV helpers.
//
// Statements that cannot be evaluated are kept verbatim as extensions when
// they set an unrecognized key, and rejected otherwise.
func DecodeKnife(data []byte, sourcePath string) (*Declarations, error) {
	p := &knifeParser{
		source: sourcePath,
		dir:    filepath.Dir(sourcePath),
		vars:   make(map[string]value),
		decls:  &Declarations{},
	}
	for _, st := range splitStatements(string(data)) {
		if err := p.statement(st.text); err != nil {
			return nil, fmt.Errorf("line %d: %w", st.line, err)
		}
	}
	return p.decls, nil
}

type statement struct {
	text string
	line int
}

// splitStatements breaks source into top level statements, dropping comments.
// Newlines inside brackets or quotes do not end a statement.
func splitStatements(src string) []statement {
	var (
		out     []statement
		cur     strings.Builder
		depth   int
		quote   rune
		escaped bool
		line    = 1
		start   = 1
	)
	flush := func() {
		if text := strings.TrimSpace(cur.String()); text != "" {
			out = append(out, statement{text: text, line: start})
		}
		cur.Reset()
		start = line
	}

	runes := []rune(src)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			line++
		}
		if quote != 0 {
			cur.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"':
			quote = r
		case '#':
			for i+1 < len(runes) && runes[i+1] != '\n' {
				i++
			}
			continue
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			if depth > 0 {
				depth--
			}
		case '\n', ';':
			if depth == 0 && !strings.HasSuffix(strings.TrimSpace(cur.String()), "\\") {
				flush()
				if r == '\n' {
					start = line
				}
				continue
			}
		}
		if cur.Len() == 0 && unicode.IsSpace(r) {
			start = line
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return out
}

type value struct {
	scalar string
	list   []string
	isList bool
}

func (v value) values() []string {
	if v.isList {
		return v.list
	}
	return []string{v.scalar}
}

type knifeParser struct {
	source string
	dir    string
	vars   map[string]value
	decls  *Declarations

	src []rune
	pos int
}

func (p *knifeParser) statement(text string) error {
	p.src = []rune(strings.ReplaceAll(text, "\\\n", " "))
	p.pos = 0

	ident := p.ident()
	if ident == "" {
		return fmt.Errorf("unexpected %q", text)
	}

	p.space()
	switch {
	case ident == "knife" && p.peek() == '[':
		return p.knifeAssignment()
	case p.peekAssign():
		// Locals only feed later values, so one that cannot be evaluated is
		// skipped and only fails the statements that reference it.
		p.consumeAssign()
		if v, err := p.expression(); err == nil {
			p.vars[ident] = v
		}
		return nil
	}

	raw := strings.TrimSpace(string(p.src[p.pos:]))
	if p.peek() == '(' {
		inner := strings.TrimSpace(string(p.src[p.pos+1:]))
		if !strings.HasSuffix(inner, ")") {
			return p.unevaluated("", ident, raw, fmt.Errorf("unbalanced parentheses"))
		}
		raw = strings.TrimSpace(strings.TrimSuffix(inner, ")"))
		p.src = []rune(raw)
		p.pos = 0
	}

	v, err := p.expressionList()
	if err != nil {
		return p.unevaluated("", ident, raw, err)
	}
	p.add("", ident, raw, v)
	return nil
}

func (p *knifeParser) knifeAssignment() error {
	p.pos++ // [
	p.space()
	key, err := p.expression()
	if err != nil {
		return fmt.Errorf("knife key: %w", err)
	}
	p.space()
	if p.peek() != ']' {
		return fmt.Errorf("expected ] after knife key")
	}
	p.pos++
	p.space()
	if !p.peekAssign() {
		return fmt.Errorf("expected = after knife[%s]", key.scalar)
	}
	p.consumeAssign()
	raw := strings.TrimSpace(string(p.src[p.pos:]))
	v, err := p.expression()
	if err == nil {
		p.space()
		if p.pos < len(p.src) {
			err = fmt.Errorf("unexpected %q", string(p.src[p.pos:]))
		}
	}
	if err != nil {
		return p.unevaluated("knife", key.scalar, raw, err)
	}
	p.add("knife", key.scalar, raw, v)
	return nil
}

func (p *knifeParser) unevaluated(namespace, key, raw string, err error) error {
	decl := Declaration{Namespace: namespace, Key: key, Raw: raw}
	if decl.recognized() {
		return fmt.Errorf("%s: %w", decl.qualifiedKey(), err)
	}
	p.decls.Add(decl)
	return nil
}

func (p *knifeParser) add(namespace, key, raw string, v value) {
	p.decls.Add(Declaration{
		Namespace: namespace,
		Key:       key,
		Raw:       raw,
		Values:    v.values(),
		IsList:    v.isList,
	})
}

// expressionList parses "a" or "a, b" (the latter becomes a list).
func (p *knifeParser) expressionList() (value, error) {
	first, err := p.expression()
	if err != nil {
		return value{}, err
	}
	p.space()
	if p.peek() != ',' {
		if p.pos < len(p.src) {
			return value{}, fmt.Errorf("unexpected %q", string(p.src[p.pos:]))
		}
		return first, nil
	}
	list := first.values()
	for p.peek() == ',' {
		p.pos++
		p.space()
		next, err := p.expression()
		if err != nil {
			return value{}, err
		}
		list = append(list, next.values()...)
		p.space()
	}
	if p.pos < len(p.src) {
		return value{}, fmt.Errorf("unexpected %q", string(p.src[p.pos:]))
	}
	return value{list: list, isList: true}, nil
}

// expression parses a term optionally followed by "+ term" concatenations.
func (p *knifeParser) expression() (value, error) {
	left, err := p.term()
	if err != nil {
		return value{}, err
	}
	for {
		p.space()
		if p.peek() != '+' {
			return left, nil
		}
		p.pos++
		p.space()
		right, err := p.term()
		if err != nil {
			return value{}, err
		}
		if left.isList || right.isList {
			left = value{list: append(left.values(), right.values()...), isList: true}
		} else {
			left = value{scalar: left.scalar + right.scalar}
		}
	}
}

func (p *knifeParser) term() (value, error) {
	p.space()
	switch r := p.peek(); {
	case r == '\'':
		s, err := p.singleQuoted()
		return value{scalar: s}, err
	case r == '"':
		s, err := p.doubleQuoted()
		return value{scalar: s}, err
	case r == ':':
		p.pos++
		sym := p.ident()
		if sym == "" {
			return value{}, fmt.Errorf("empty symbol")
		}
		return value{scalar: sym}, nil
	case r == '[':
		return p.array()
	case r == '-' || unicode.IsDigit(r):
		start := p.pos
		p.pos++
		for p.pos < len(p.src) && (unicode.IsDigit(p.src[p.pos]) || p.src[p.pos] == '.' || p.src[p.pos] == '_') {
			p.pos++
		}
		return value{scalar: string(p.src[start:p.pos])}, nil
	case r == 0:
		return value{}, fmt.Errorf("missing value")
	}

	ident := p.ident()
	switch ident {
	case "":
		return value{}, fmt.Errorf("unexpected %q", string(p.src[p.pos:]))
	case "true", "false":
		return value{scalar: ident}, nil
	case "nil":
		return value{}, nil
	case "STDOUT", "STDERR", "$stdout", "$stderr":
		return value{scalar: strings.ToUpper(strings.TrimPrefix(ident, "$"))}, nil
	case "__FILE__":
		return value{scalar: p.source}, nil
	case "__dir__":
		return value{scalar: p.dir}, nil
	case "ENV":
		return p.env()
	case "File":
		return p.fileCall()
	}
	if v, ok := p.vars[ident]; ok {
		return v, nil
	}
	return value{}, fmt.Errorf("undefined name %q", ident)
}

func (p *knifeParser) env() (value, error) {
	if p.peek() != '[' {
		return value{}, fmt.Errorf("expected ENV[...]")
	}
	p.pos++
	key, err := p.expression()
	if err != nil {
		return value{}, err
	}
	p.space()
	if p.peek() != ']' {
		return value{}, fmt.Errorf("expected ] after ENV key")
	}
	p.pos++
	return value{scalar: os.Getenv(key.scalar)}, nil
}

func (p *knifeParser) fileCall() (value, error) {
	if p.peek() != '.' {
		return value{}, fmt.Errorf("expected File.<method>")
	}
	p.pos++
	method := p.ident()
	args, err := p.arguments()
	if err != nil {
		return value{}, fmt.Errorf("File.%s: %w", method, err)
	}
	switch method {
	case "join":
		return value{scalar: filepath.Join(args...)}, nil
	case "dirname":
		if len(args) != 1 {
			return value{}, fmt.Errorf("File.dirname takes one argument")
		}
		return value{scalar: filepath.Dir(args[0])}, nil
	case "expand_path":
		if len(args) == 0 || len(args) > 2 {
			return value{}, fmt.Errorf("File.expand_path takes one or two arguments")
		}
		base := p.dir
		if len(args) == 2 {
			base = args[1]
		}
		resolved, err := utils.ResolvePath(base, args[0])
		return value{scalar: resolved}, err
	default:
		return value{}, fmt.Errorf("unsupported File.%s", method)
	}
}

func (p *knifeParser) arguments() ([]string, error) {
	p.space()
	if p.peek() != '(' {
		return nil, fmt.Errorf("expected (")
	}
	p.pos++
	var args []string
	for {
		p.space()
		if p.peek() == ')' {
			p.pos++
			return args, nil
		}
		v, err := p.expression()
		if err != nil {
			return nil, err
		}
		args = append(args, v.values()...)
		p.space()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
		default:
			return nil, fmt.Errorf("expected , or )")
		}
	}
}

func (p *knifeParser) array() (value, error) {
	p.pos++ // [
	list := []string{}
	for {
		p.space()
		if p.peek() == ']' {
			p.pos++
			return value{list: list, isList: true}, nil
		}
		v, err := p.expression()
		if err != nil {
			return value{}, err
		}
		list = append(list, v.values()...)
		p.space()
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
		default:
			return value{}, fmt.Errorf("expected , or ] in array")
		}
	}
}

func (p *knifeParser) singleQuoted() (string, error) {
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		p.pos++
		switch {
		case r == '\\' && p.pos < len(p.src) && (p.src[p.pos] == '\'' || p.src[p.pos] == '\\'):
			b.WriteRune(p.src[p.pos])
			p.pos++
		case r == '\'':
			return b.String(), nil
		default:
			b.WriteRune(r)
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (p *knifeParser) doubleQuoted() (string, error) {
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		p.pos++
		switch r {
		case '"':
			return b.String(), nil
		case '\\':
			if p.pos >= len(p.src) {
				return "", fmt.Errorf("unterminated string")
			}
			esc := p.src[p.pos]
			p.pos++
			switch esc {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			default:
				b.WriteRune(esc)
			}
		case '#':
			if p.peek() != '{' {
				b.WriteRune(r)
				continue
			}
			end := strings.IndexRune(string(p.src[p.pos:]), '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated interpolation")
			}
			name := strings.TrimSpace(string(p.src[p.pos+1 : p.pos+end]))
			v, ok := p.vars[name]
			if !ok {
				return "", fmt.Errorf("undefined name %q in interpolation", name)
			}
			b.WriteString(strings.Join(v.values(), " "))
			p.pos += end + 1
		default:
			b.WriteRune(r)
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (p *knifeParser) ident() string {
	start := p.pos
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		if r == '_' || r == '$' || unicode.IsLetter(r) || (p.pos > start && (unicode.IsDigit(r) || r == '?' || r == '!')) {
			p.pos++
			continue
		}
		break
	}
	return string(p.src[start:p.pos])
}

func (p *knifeParser) peek() rune {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *knifeParser) peekAssign() bool {
	rest := string(p.src[p.pos:])
	return strings.HasPrefix(rest, "||=") || (strings.HasPrefix(rest, "=") && !strings.HasPrefix(rest, "=="))
}

func (p *knifeParser) consumeAssign() {
	if strings.HasPrefix(string(p.src[p.pos:]), "||=") {
		p.pos += 3
	} else {
		p.pos++
	}
	p.space()
}

func (p *knifeParser) space() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}
