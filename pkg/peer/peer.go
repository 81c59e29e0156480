package peer

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is used when a peer spec carries no port field.
const DefaultPort = 80

// Spec is one configured remote endpoint.
type Spec struct {
	Host string
	Port int
	Name string // Display name used in logs (defaults to Host)
}

// Address returns the dialable host:port form.
func (s Spec) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ParseError reports a peer spec whose port field is not numeric.
type ParseError struct {
	Input string
	Port  string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid peer spec %q: port %q is not a number", e.Input, e.Port)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// split breaks s into at most three fields: host, port, name.
// The name field keeps any remaining colons.
func split(s string) []string {
	return strings.SplitN(s, ":", 3)
}

// Parse parses a peer spec of the form host[:port[:name]].
//
// Examples:
//
//	"10.0.0.1"            -> {10.0.0.1, 80, 10.0.0.1}
//	"10.0.0.1:8080"       -> {10.0.0.1, 8080, 10.0.0.1}
//	"10.0.0.1:8080:edge"  -> {10.0.0.1, 8080, edge}
func Parse(s string) (Spec, error) {
	fields := split(s)

	spec := Spec{Host: fields[0], Port: DefaultPort, Name: fields[0]}
	if len(fields) > 1 {
		port, err := strconv.Atoi(fields[1])
		if err != nil {
			return Spec{}, &ParseError{Input: s, Port: fields[1], Err: err}
		}
		spec.Port = port
	}
	if len(fields) > 2 {
		spec.Name = fields[2]
	}
	return spec, nil
}

// ParseAll parses specs in input order. Duplicates are kept.
func ParseAll(list []string) ([]Spec, error) {
	out := make([]Spec, 0, len(list))
	for _, s := range list {
		spec, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}
