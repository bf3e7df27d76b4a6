package model

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidProxy = errors.New("invalid proxy")

// Proxy identifies a cached object without holding its payload. It is the only
// form in which cached content crosses a transfer boundary.
type Proxy struct {
	Kind     Kind
	Fullname string
}

func ProxyOf(t Thing) Proxy {
	return Proxy{Kind: t.Kind(), Fullname: t.Fullname()}
}

func (p Proxy) String() string {
	return string(p.Kind) + ":" + p.Fullname
}

// ParseProxy parses the "kind:fullname" text form.
func ParseProxy(s string) (Proxy, error) {
	kind, name, ok := strings.Cut(s, ":")
	if !ok {
		return Proxy{}, fmt.Errorf("%w: %q", ErrInvalidProxy, s)
	}
	if KindOf(name) != Kind(kind) {
		return Proxy{}, fmt.Errorf("%w: kind %q does not match %q", ErrInvalidProxy, kind, name)
	}
	return Proxy{Kind: Kind(kind), Fullname: name}, nil
}

func (p Proxy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Proxy) UnmarshalText(text []byte) error {
	parsed, err := ParseProxy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
