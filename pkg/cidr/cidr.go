// Package cidr validates network prefixes written in CIDR notation.
package cidr

import (
	"fmt"
	"net/netip"
	"strings"
)

// Default is the literal iproute2 accepts for the default route.
const Default = "default"

// ValidationError reports a prefix that failed validation.
type ValidationError struct {
	Text   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid prefix %q: %s", e.Text, e.Reason)
}

// Validator checks a candidate prefix and returns its normalized form.
type Validator interface {
	Validate(text string) (string, error)
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc func(text string) (string, error)

// Validate calls f(text).
func (f ValidatorFunc) Validate(text string) (string, error) {
	return f(text)
}

// Standard is the validator used when none is configured.
var Standard Validator = ValidatorFunc(Validate)

// Validate accepts "default", ADDR/LEN and bare addresses. The normalized
// form has host bits cleared; a bare address gets a full-length mask.
func Validate(text string) (string, error) {
	if text == "" {
		return "", &ValidationError{Text: text, Reason: "empty prefix"}
	}
	if text == Default {
		return Default, nil
	}
	p, err := Parse(text)
	if err != nil {
		return "", err
	}
	return p.String(), nil
}

// Parse returns the masked prefix for text. "default" is not accepted here
// since it carries no address family.
func Parse(text string) (netip.Prefix, error) {
	addrPart, lenPart, hasLen := strings.Cut(text, "/")
	addr, err := netip.ParseAddr(addrPart)
	if err != nil {
		return netip.Prefix{}, &ValidationError{Text: text, Reason: "not an IP address"}
	}
	if addr.Zone() != "" {
		return netip.Prefix{}, &ValidationError{Text: text, Reason: "zoned addresses are not routable prefixes"}
	}
	addr = addr.Unmap()
	if !hasLen {
		return netip.PrefixFrom(addr, addr.BitLen()), nil
	}
	if lenPart == "" {
		return netip.Prefix{}, &ValidationError{Text: text, Reason: "missing prefix length"}
	}
	p, err := netip.ParsePrefix(addr.String() + "/" + lenPart)
	if err != nil {
		return netip.Prefix{}, &ValidationError{
			Text:   text,
			Reason: fmt.Sprintf("prefix length %q out of range for IPv%d", lenPart, family(addr)),
		}
	}
	return p.Masked(), nil
}

func family(a netip.Addr) int {
	if a.Is4() {
		return 4
	}
	return 6
}
