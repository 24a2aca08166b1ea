package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateTokenLayout = "06Jan02"
	seqDigits       = 5
	maxSequence     = 99999
)

var (
	// ErrCorruptOrderCode means a stored code for today does not have the expected shape.
	ErrCorruptOrderCode = errors.New("sequence: corrupt order code")
	// ErrSequenceExhausted means the daily counter ran past five digits.
	ErrSequenceExhausted = errors.New("sequence: exhausted")
)

// SequenceGenerator mints order codes of the form <yyMMMdd><00000>.
type SequenceGenerator struct {
	clock func() time.Time
}

func NewSequenceGenerator(clock func() time.Time) *SequenceGenerator {
	if clock == nil {
		clock = time.Now
	}
	return &SequenceGenerator{clock: clock}
}

// DateToken formats t as e.g. 24DEC11.
func DateToken(t time.Time) string {
	return strings.ToUpper(t.Format(dateTokenLayout))
}

func FormatOrderCode(token string, seq int) string {
	return fmt.Sprintf("%s%0*d", token, seqDigits, seq)
}

// ParseSequence extracts the counter from a code minted under token.
func ParseSequence(token, code string) (int, error) {
	if len(code) != len(token)+seqDigits || !strings.HasPrefix(code, token) {
		return 0, fmt.Errorf("%w: %q", ErrCorruptOrderCode, code)
	}
	digits := code[len(token):]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q", ErrCorruptOrderCode, code)
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrCorruptOrderCode, code)
	}
	return n, nil
}

// Next must run inside the creating transaction so the counter row lock and
// the order insert commit together.
func (g *SequenceGenerator) Next(ctx context.Context, tx Tx) (string, error) {
	token := DateToken(g.clock())

	floor := 0
	last, ok, err := tx.LatestOrderCode(ctx, token)
	if err != nil {
		return "", fmt.Errorf("sequence: latest code: %w", err)
	}
	if ok {
		if floor, err = ParseSequence(token, last); err != nil {
			return "", err
		}
	}

	seq, err := tx.AdvanceOrderSequence(ctx, token, floor)
	if err != nil {
		return "", fmt.Errorf("sequence: advance: %w", err)
	}
	if seq > maxSequence {
		return "", fmt.Errorf("%w: %s", ErrSequenceExhausted, token)
	}
	return FormatOrderCode(token, seq), nil
}
