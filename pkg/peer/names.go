package peer

// NameTable maps a raw peer host to its display name.
type NameTable map[string]string

// NewNameTable builds a table from peer specs, keeping only the entries
// that spell out all three fields (host:port:name).
func NewNameTable(list []string) (NameTable, error) {
	names := make(NameTable)
	for _, s := range list {
		spec, err := Parse(s)
		if err != nil {
			return nil, err
		}
		if len(split(s)) < 3 {
			continue
		}
		names[spec.Host] = spec.Name
	}
	return names, nil
}

// Lookup returns the display name for host, or fallback when there is none.
// A nil table always yields fallback.
func (t NameTable) Lookup(host, fallback string) string {
	if name, ok := t[host]; ok {
		return name
	}
	return fallback
}
