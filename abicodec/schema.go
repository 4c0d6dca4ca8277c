// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package abicodec turns the human readable encodings stored in a transfer
// registry, such as "tuple(bytes32 lockHash, uint256 expiry)", into ABI types
// and converts JSON-like values to and from them.
package abicodec

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/offchainlabs/vector-reader/util/containers"
)

var (
	ErrInvalidSchema = errors.New("invalid abi schema")
	ErrInvalidValue  = errors.New("invalid abi value")
)

const schemaCacheSize = 256

var schemaCache = containers.NewLruCache[string, abi.Type](schemaCacheSize)

var (
	whitespace   = regexp.MustCompile(`\s+`)
	aroundOpen   = regexp.MustCompile(`\s*\(\s*`)
	beforeClose  = regexp.MustCompile(`\s*\)`)
	aroundComma  = regexp.MustCompile(`\s*,\s*`)
	beforeSuffix = regexp.MustCompile(`\s+\[`)
)

// Tidy canonicalises the whitespace of a schema string: newlines and runs of
// spaces collapse to one space, parentheses lose surrounding padding and
// commas are followed by exactly one space.
func Tidy(schema string) string {
	s := whitespace.ReplaceAllString(schema, " ")
	s = aroundOpen.ReplaceAllString(s, "(")
	s = beforeClose.ReplaceAllString(s, ")")
	s = aroundComma.ReplaceAllString(s, ", ")
	s = beforeSuffix.ReplaceAllString(s, "[")
	return strings.TrimSpace(s)
}

// ParseType parses a single, optionally named, type. Parsed types are cached
// by their tidied form.
func ParseType(schema string) (abi.Type, error) {
	tidy := Tidy(schema)
	if t, ok := schemaCache.Get(tidy); ok {
		return t, nil
	}
	if tidy == "" {
		return abi.Type{}, fmt.Errorf("%w: empty schema", ErrInvalidSchema)
	}
	marshaling, err := parseComponent(tidy, 0)
	if err != nil {
		return abi.Type{}, fmt.Errorf("%w: %q: %w", ErrInvalidSchema, schema, err)
	}
	t, err := abi.NewType(marshaling.Type, "", marshaling.Components)
	if err != nil {
		return abi.Type{}, fmt.Errorf("%w: %q: %w", ErrInvalidSchema, schema, err)
	}
	schemaCache.Add(tidy, t)
	return t, nil
}

// parseComponent parses "type [name]" where type may be a tuple with an array
// suffix. Unnamed components are named argN after their position.
func parseComponent(s string, position int) (abi.ArgumentMarshaling, error) {
	s = strings.TrimSpace(s)
	var out abi.ArgumentMarshaling
	var rest string
	switch {
	case strings.HasPrefix(s, "tuple("), strings.HasPrefix(s, "("):
		open := strings.IndexByte(s, '(')
		closing, err := matchingParen(s, open)
		if err != nil {
			return out, err
		}
		components, err := parseList(s[open+1 : closing])
		if err != nil {
			return out, err
		}
		rest = s[closing+1:]
		suffixEnd := strings.IndexByte(rest, ' ')
		if suffixEnd < 0 {
			suffixEnd = len(rest)
		}
		suffix := rest[:suffixEnd]
		if suffix != "" && !strings.HasPrefix(suffix, "[") {
			return out, fmt.Errorf("unexpected %q after tuple", suffix)
		}
		out.Type = "tuple" + suffix
		out.Components = components
		rest = rest[suffixEnd:]
	default:
		typeEnd := strings.IndexByte(s, ' ')
		if typeEnd < 0 {
			typeEnd = len(s)
		}
		out.Type = s[:typeEnd]
		rest = s[typeEnd:]
	}
	fields := strings.Fields(rest)
	// "indexed" and data locations are allowed in human readable abis.
	for len(fields) > 1 {
		switch fields[0] {
		case "indexed", "memory", "calldata", "storage":
			fields = fields[1:]
		default:
			return out, fmt.Errorf("unexpected %q in component", strings.Join(fields, " "))
		}
	}
	if len(fields) == 1 {
		out.Name = fields[0]
	} else {
		out.Name = fmt.Sprintf("arg%d", position)
	}
	return out, nil
}

func parseList(s string) ([]abi.ArgumentMarshaling, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("empty tuple")
	}
	var parts []string
	depth, start := 0, 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	components := make([]abi.ArgumentMarshaling, 0, len(parts))
	names := make(map[string]struct{}, len(parts))
	for i, part := range parts {
		component, err := parseComponent(part, i)
		if err != nil {
			return nil, err
		}
		field := abi.ToCamelCase(component.Name)
		if _, dup := names[field]; dup {
			return nil, fmt.Errorf("duplicate component %q", component.Name)
		}
		names[field] = struct{}{}
		components = append(components, component)
	}
	return components, nil
}

func matchingParen(s string, open int) (int, error) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, errors.New("unbalanced parentheses")
}
