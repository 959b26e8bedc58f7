/*
numbering.go - SequentialNumberGenerator

PURPOSE:
  Produces unique, period-scoped, human-readable identifiers:

    receipt:               PAY-012025-00001
    reservation reference: 012025-001

FORMAT:
  {PREFIX}-{PERIOD}-{COUNTER}, PREFIX omitted (with its dash) when empty.
  PERIOD is DDMMYYYY, MMYYYY or YYYY depending on the sequence granularity.
  COUNTER is zero-padded to the sequence width; it may grow past the width.

ATOMICITY:
  The counter lives in a PeriodCounter document reachable only through
  CounterStore.NextCounter, which is a single serializable read-or-create +
  increment. Concurrent callers for the same period never share a value.

DEGRADED MODE:
  NextCounter failures are retried with exponential backoff up to
  MaxAttempts. After that the generator returns

    {PREFIX}-{PERIOD}-T{unix millis}{8 hex}

  which is locally unique but not sequential. It is logged at error level
  and recognised by IsFallback. Parse rejects it.
*/
package booking

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// SEQUENCES
// =============================================================================

type Granularity int

const (
	PeriodMonth Granularity = iota
	PeriodDay
	PeriodYear
)

// Sequence describes one family of identifiers.
type Sequence struct {
	Name        string // counter namespace, e.g. "receipt"
	Prefix      string // e.g. "PAY"; empty for no prefix
	Granularity Granularity
	Width       int
}

var (
	ReceiptSequence     = Sequence{Name: "receipt", Prefix: "PAY", Granularity: PeriodMonth, Width: 5}
	ReservationSequence = Sequence{Name: "reservation", Granularity: PeriodMonth, Width: 3}
)

// PeriodKey renders t in the sequence's period format.
func PeriodKey(g Granularity, t time.Time) string {
	switch g {
	case PeriodDay:
		return t.Format("02012006")
	case PeriodYear:
		return t.Format("2006")
	default:
		return t.Format("012006")
	}
}

// CounterID is the PeriodCounter document id for a sequence and period:
// the bare period key namespaced by the sequence name.
func CounterID(seq Sequence, period string) string {
	return seq.Name + "-" + period
}

// Format renders an identifier. It performs no validation.
func Format(seq Sequence, period string, counter int64) string {
	num := fmt.Sprintf("%0*d", seq.Width, counter)
	if seq.Prefix == "" {
		return period + "-" + num
	}
	return seq.Prefix + "-" + period + "-" + num
}

// =============================================================================
// GENERATOR
// =============================================================================

const (
	defaultMaxAttempts = 5
	defaultBaseBackoff = 10 * time.Millisecond
)

type Numberer struct {
	counters CounterStore
	clock    Clock
	log      *zap.Logger

	MaxAttempts int
	BaseBackoff time.Duration
}

func NewNumberer(counters CounterStore, clock Clock, log *zap.Logger) *Numberer {
	if clock == nil {
		clock = SystemClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Numberer{
		counters:    counters,
		clock:       clock,
		log:         log,
		MaxAttempts: defaultMaxAttempts,
		BaseBackoff: defaultBaseBackoff,
	}
}

// Generate allocates the next identifier for the current period.
func (n *Numberer) Generate(ctx context.Context, seq Sequence) (string, error) {
	return n.GenerateAt(ctx, seq, n.clock.Now())
}

// GenerateAt allocates the next identifier for the period containing at.
// It only returns an error if ctx is done; storage failures degrade instead.
func (n *Numberer) GenerateAt(ctx context.Context, seq Sequence, at time.Time) (string, error) {
	period := PeriodKey(seq.Granularity, at)
	id := CounterID(seq, period)

	attempts := n.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := n.BaseBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		counter, err := n.counters.NextCounter(ctx, id)
		if err == nil {
			return Format(seq, period, counter), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		lastErr = err
		n.log.Warn("counter increment failed",
			zap.String("counter", id),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	fallback := fallbackID(seq, period, n.clock.Now())
	n.log.Error("sequential numbering degraded to fallback identifier",
		zap.String("counter", id),
		zap.String("identifier", fallback),
		zap.Int("attempts", attempts),
		zap.Error(lastErr))
	return fallback, nil
}

func fallbackID(seq Sequence, period string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	tail := fmt.Sprintf("T%d%s", now.UnixMilli(), suffix)
	if seq.Prefix == "" {
		return period + "-" + tail
	}
	return seq.Prefix + "-" + period + "-" + tail
}

// =============================================================================
// PARSING
// =============================================================================

// Identifier is a parsed sequential identifier.
type Identifier struct {
	Prefix  string
	Period  string
	Counter int64
}

// IsFallback reports whether id was produced by the degraded path.
func IsFallback(id string) bool {
	parts := strings.Split(id, "-")
	last := parts[len(parts)-1]
	return len(parts) >= 2 && len(last) > 1 && last[0] == 'T'
}

// Parse strictly validates and splits an identifier. Anything that is not
// exactly [PREFIX-]PERIOD-COUNTER is rejected.
func Parse(id string) (Identifier, error) {
	if IsFallback(id) {
		return Identifier{}, &ValidationError{
			Field: "identifier", Rule: "sequential",
			Message: fmt.Sprintf("%q is a fallback identifier", id),
			Err:     ErrFallbackIdentifier,
		}
	}

	parts := strings.Split(id, "-")
	var out Identifier
	switch len(parts) {
	case 2:
		out.Period = parts[0]
	case 3:
		if !isUpperAlpha(parts[0]) {
			return Identifier{}, invalid("identifier", "prefix", "prefix %q must be uppercase letters", parts[0])
		}
		out.Prefix = parts[0]
		out.Period = parts[1]
	default:
		return Identifier{}, invalid("identifier", "format", "%q is not PREFIX-PERIOD-COUNTER or PERIOD-COUNTER", id)
	}

	if err := validatePeriod(out.Period); err != nil {
		return Identifier{}, err
	}

	num := parts[len(parts)-1]
	if len(num) < 3 || !isDigits(num) {
		return Identifier{}, invalid("identifier", "counter", "counter %q must be at least 3 digits", num)
	}
	counter, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return Identifier{}, invalid("identifier", "counter", "counter %q out of range", num)
	}
	if counter < 1 {
		return Identifier{}, invalid("identifier", "counter", "counter must be positive")
	}
	out.Counter = counter
	return out, nil
}

func validatePeriod(p string) error {
	if !isDigits(p) {
		return invalid("identifier", "period", "period %q must be digits", p)
	}
	var layout string
	switch len(p) {
	case 8:
		layout = "02012006"
	case 6:
		layout = "012006"
	case 4:
		layout = "2006"
	default:
		return invalid("identifier", "period", "period %q must be DDMMYYYY, MMYYYY or YYYY", p)
	}
	if _, err := time.Parse(layout, p); err != nil {
		return invalid("identifier", "period", "period %q is not a valid date", p)
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isUpperAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
