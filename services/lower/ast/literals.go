// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// =============================================================================
// PROPERTY KEYS
// =============================================================================

// PropertyKey is a resolved property name.
type PropertyKey struct {
	Text     string
	Computed bool
	Private  bool
}

// propertyKey resolves a key node. Identifiers give their name, strings
// their decoded value, numbers their decimal text and computed keys the
// verbatim inner expression. Private names return their raw text with
// Private set; class members substitute the whole member text.
func (l *lowering) propertyKey(n *sitter.Node) PropertyKey {
	switch n.Type() {
	case "string":
		return PropertyKey{Text: l.stringValue(n)}
	case "number":
		lit := parseNumber(l.text(n))
		if lit.bigint {
			return PropertyKey{Text: lit.bigText}
		}
		return PropertyKey{Text: formatNumber(lit.value)}
	case "computed_property_name":
		inner := namedChildren(n)
		if len(inner) == 0 {
			return PropertyKey{Text: l.text(n), Computed: true}
		}
		return PropertyKey{Text: l.text(inner[0]), Computed: true}
	case "private_property_identifier":
		return PropertyKey{Text: l.text(n), Private: true}
	}
	return PropertyKey{Text: l.text(n)}
}

// =============================================================================
// STRINGS
// =============================================================================

// stringValue returns the decoded value of a string literal node.
func (l *lowering) stringValue(n *sitter.Node) string {
	raw := l.text(n)
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		raw = raw[1 : len(raw)-1]
	}
	return decodeEscapes(raw)
}

// decodeEscapes interprets the escape sequences of a string literal body.
// Unknown escapes yield the escaped character; line continuations vanish.
func decodeEscapes(raw string) string {
	if !strings.ContainsRune(raw, '\\') {
		return raw
	}

	var units []uint16
	flush := func(b *strings.Builder) {
		if len(units) > 0 {
			b.WriteString(string(utf16.Decode(units)))
			units = units[:0]
		}
	}

	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); {
		c := raw[i]
		if c != '\\' || i+1 >= len(raw) {
			flush(&b)
			r, size := utf8.DecodeRuneInString(raw[i:])
			b.WriteRune(r)
			i += size
			continue
		}

		i++
		esc := raw[i]
		switch esc {
		case 'n':
			flush(&b)
			b.WriteByte('\n')
			i++
		case 't':
			flush(&b)
			b.WriteByte('\t')
			i++
		case 'r':
			flush(&b)
			b.WriteByte('\r')
			i++
		case 'b':
			flush(&b)
			b.WriteByte('\b')
			i++
		case 'f':
			flush(&b)
			b.WriteByte('\f')
			i++
		case 'v':
			flush(&b)
			b.WriteByte('\v')
			i++
		case '\r':
			flush(&b)
			i++
			if i < len(raw) && raw[i] == '\n' {
				i++
			}
		case '\n':
			flush(&b)
			i++
		case 'x':
			if i+2 < len(raw) && isHex(raw[i+1:i+3]) {
				v, _ := strconv.ParseUint(raw[i+1:i+3], 16, 8)
				flush(&b)
				b.WriteRune(rune(v))
				i += 3
				continue
			}
			flush(&b)
			b.WriteByte('x')
			i++
		case 'u':
			if v, n, ok := readUnicodeEscape(raw[i+1:]); ok {
				if v <= 0xFFFF {
					units = append(units, uint16(v))
				} else {
					flush(&b)
					b.WriteRune(rune(v))
				}
				i += 1 + n
				continue
			}
			flush(&b)
			b.WriteByte('u')
			i++
		default:
			if esc >= '0' && esc <= '7' {
				j := i
				for j < len(raw) && j < i+3 && raw[j] >= '0' && raw[j] <= '7' {
					j++
				}
				v, _ := strconv.ParseUint(raw[i:j], 8, 16)
				if v > 0xFF {
					j--
					v, _ = strconv.ParseUint(raw[i:j], 8, 16)
				}
				flush(&b)
				b.WriteRune(rune(v))
				i = j
				continue
			}
			flush(&b)
			r, size := utf8.DecodeRuneInString(raw[i:])
			b.WriteRune(r)
			i += size
		}
	}
	flush(&b)
	return b.String()
}

// readUnicodeEscape reads the part after "\u": either four hex digits or a
// braced code point. It returns the value and the bytes consumed.
func readUnicodeEscape(s string) (uint32, int, bool) {
	if strings.HasPrefix(s, "{") {
		end := strings.IndexByte(s, '}')
		if end < 2 || !isHex(s[1:end]) {
			return 0, 0, false
		}
		v, err := strconv.ParseUint(s[1:end], 16, 32)
		if err != nil || v > utf8.MaxRune {
			return 0, 0, false
		}
		return uint32(v), end + 1, true
	}
	if len(s) < 4 || !isHex(s[:4]) {
		return 0, 0, false
	}
	v, _ := strconv.ParseUint(s[:4], 16, 32)
	return uint32(v), 4, true
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}

// =============================================================================
// NUMBERS
// =============================================================================

// numberLit is a parsed numeric literal.
type numberLit struct {
	value   float64
	bigint  bool
	bigText string
}

// parseNumber parses a numeric literal: decimal, hex, octal, binary,
// legacy octal, numeric separators and the BigInt "n" suffix.
func parseNumber(raw string) numberLit {
	s := strings.ReplaceAll(raw, "_", "")

	if strings.HasSuffix(s, "n") {
		digits, base := splitRadix(strings.TrimSuffix(s, "n"))
		v, ok := new(big.Int).SetString(digits, base)
		if !ok {
			return numberLit{bigint: true, bigText: strings.TrimSuffix(s, "n")}
		}
		return numberLit{bigint: true, bigText: v.String()}
	}

	digits, base := splitRadix(s)
	if base != 10 {
		v, ok := new(big.Int).SetString(digits, base)
		if !ok {
			return numberLit{value: math.NaN()}
		}
		f, _ := new(big.Float).SetInt(v).Float64()
		return numberLit{value: f}
	}

	// Out-of-range literals come back as ±Inf alongside a range error.
	f, _ := strconv.ParseFloat(digits, 64)
	return numberLit{value: f}
}

// splitRadix strips a radix prefix and returns the digits and base.
func splitRadix(s string) (string, int) {
	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X':
			return s[2:], 16
		case 'o', 'O':
			return s[2:], 8
		case 'b', 'B':
			return s[2:], 2
		}
	}
	if len(s) > 1 && s[0] == '0' && strings.Trim(s, "01234567") == "" {
		return s[1:], 8
	}
	return s, 10
}

// formatNumber renders a number the way JavaScript's Number#toString does
// for the common cases: integral and fixed-point values in plain decimal,
// very large or very small magnitudes in exponent form.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	s := strconv.FormatFloat(f, 'e', -1, 64)
	mant, exp, _ := strings.Cut(s, "e")
	sign := exp[0]
	exp = strings.TrimLeft(exp[1:], "0")
	if exp == "" {
		exp = "0"
	}
	return mant + "e" + string(sign) + exp
}
