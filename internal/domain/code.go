package domain

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// CodeSequence hands out report numbers, strictly increasing within a year.
type CodeSequence interface {
	Next(ctx context.Context, year int) (int, error)
}

var codePattern = regexp.MustCompile(`^\d{2,}/PEP82600/\d{4}-SO$`)

// CodeGenerator produces report codes of the form NN/PEP82600/YYYY-SO.
type CodeGenerator struct {
	seq CodeSequence
	now func() time.Time
}

// NewCodeGenerator returns a generator backed by seq. A nil clock uses time.Now.
func NewCodeGenerator(seq CodeSequence, now func() time.Time) *CodeGenerator {
	if now == nil {
		now = time.Now
	}
	return &CodeGenerator{seq: seq, now: now}
}

// Generate reserves the next number for the current year and formats it.
func (g *CodeGenerator) Generate(ctx context.Context) (string, error) {
	year := g.now().Year()
	n, err := g.seq.Next(ctx, year)
	if err != nil {
		return "", &PersistenceError{Op: "reserve report code", Err: err}
	}
	return FormatCode(n, year), nil
}

// FormatCode renders a code. Numbers below 10 are zero padded; numbers
// past 99 widen the field instead of wrapping.
func FormatCode(n, year int) string {
	return fmt.Sprintf("%02d/PEP82600/%d-SO", n, year)
}

// IsValidCode checks if code has the report code shape
func IsValidCode(code string) bool {
	return codePattern.MatchString(code)
}
