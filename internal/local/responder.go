// Package local implements the last-resort responder used when every
// provider in the chain has failed. It never performs I/O and never fails.
package local

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Apology is returned when the input is not a simple arithmetic expression.
const Apology = "Sorry, I can't generate a response right now. Please try again in a moment."

// MaxExpressionLen bounds the sanitized expression length.
const MaxExpressionLen = 50

var repeatedOperators = regexp.MustCompile(`[*+/]{2,}`)

// Responder produces a deterministic reply from the user's text alone.
type Responder struct{}

// NewResponder returns a Responder.
func NewResponder() *Responder { return &Responder{} }

// Respond evaluates text as arithmetic when it sanitizes to a valid
// expression and returns "Result: <n>", or Apology otherwise.
func (r *Responder) Respond(text string) string {
	expr, ok := Sanitize(text)
	if !ok {
		return Apology
	}
	v, err := Evaluate(expr)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Apology
	}
	return "Result: " + FormatNumber(v)
}

// Sanitize keeps only digits, arithmetic operators, parentheses, dots and
// whitespace, then rejects results that cannot be a plain expression.
func Sanitize(text string) (string, bool) {
	var b strings.Builder
	for _, c := range text {
		switch {
		case c >= '0' && c <= '9':
			b.WriteRune(c)
		case strings.ContainsRune("+-*/().", c):
			b.WriteRune(c)
		case c == ' ', c == '\t', c == '\n', c == '\r':
			b.WriteRune(c)
		}
	}

	expr := strings.TrimSpace(b.String())
	if expr == "" || len(expr) > MaxExpressionLen {
		return "", false
	}
	if !strings.ContainsAny(expr, "0123456789") {
		return "", false
	}
	compact := strings.Join(strings.Fields(expr), "")
	if repeatedOperators.MatchString(compact) {
		return "", false
	}
	return expr, true
}

// FormatNumber renders v in its shortest exact decimal form.
func FormatNumber(v float64) string {
	if v == 0 {
		v = 0 // normalizes -0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
