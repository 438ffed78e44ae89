package configs

// Declaration is a single key assignment read from a configuration source.
type Declaration struct {
	// Namespace is "knife" for knife[:key] assignments and empty otherwise.
	Namespace string
	Key       string
	// Raw is the value exactly as written in the source.
	Raw    string
	Values []string
	IsList bool
}

func (d Declaration) recognized() bool {
	if d.Namespace == "knife" {
		return knifeKeys[d.Key]
	}
	if d.Namespace != "" {
		return false
	}
	return topLevelKeys[d.Key] || knifeKeys[d.Key]
}

func (d Declaration) qualifiedKey() string {
	if d.Namespace == "" {
		return d.Key
	}
	return d.Namespace + "." + d.Key
}

func (d Declaration) matches(key string) bool {
	if knifeKeys[key] {
		return d.Key == key && (d.Namespace == "" || d.Namespace == "knife")
	}
	return d.Key == key && d.Namespace == ""
}

// Declarations is the ordered set of assignments from one source. A later
// assignment to the same key overrides an earlier one.
type Declarations struct {
	entries []Declaration
}

// Add appends an assignment.
func (d *Declarations) Add(decl Declaration) {
	d.entries = append(d.entries, decl)
}

// Entries returns the assignments in source order.
func (d *Declarations) Entries() []Declaration {
	return d.entries
}

func (d *Declarations) last(key string) (Declaration, bool) {
	for i := len(d.entries) - 1; i >= 0; i-- {
		if d.entries[i].matches(key) {
			return d.entries[i], true
		}
	}
	return Declaration{}, false
}

// Scalar returns the effective single value of key, or "" when unset.
func (d *Declarations) Scalar(key string) string {
	decl, ok := d.last(key)
	if !ok || len(decl.Values) == 0 {
		return ""
	}
	return decl.Values[0]
}

// List returns the effective values of key. A scalar assignment yields a
// one-element list.
func (d *Declarations) List(key string) []string {
	decl, ok := d.last(key)
	if !ok {
		return nil
	}
	return decl.Values
}
