package booking_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lodge-engine/booking"
	"github.com/warp/lodge-engine/booking/store"
)

func TestPeriodKey(t *testing.T) {
	at := time.Date(2025, time.January, 5, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, "012025", booking.PeriodKey(booking.PeriodMonth, at))
	assert.Equal(t, "05012025", booking.PeriodKey(booking.PeriodDay, at))
	assert.Equal(t, "2025", booking.PeriodKey(booking.PeriodYear, at))
}

func TestCounterID_NamespacesPeriodKey(t *testing.T) {
	assert.Equal(t, "receipt-012025", booking.CounterID(booking.ReceiptSequence, "012025"))
	assert.Equal(t, "reservation-012025", booking.CounterID(booking.ReservationSequence, "012025"))
}

func TestFormat_PadsAndGrowsPastWidth(t *testing.T) {
	assert.Equal(t, "PAY-012025-00042", booking.Format(booking.ReceiptSequence, "012025", 42))
	assert.Equal(t, "012025-007", booking.Format(booking.ReservationSequence, "012025", 7))
	assert.Equal(t, "012025-1234", booking.Format(booking.ReservationSequence, "012025", 1234))
}

func TestGenerate_ContinuesFromStoredCounter(t *testing.T) {
	// GIVEN: The January 2025 counters already stand at 7
	mem := store.NewMemory()
	mem.SetCounter(booking.CounterID(booking.ReservationSequence, "012025"), 7)
	mem.SetCounter(booking.CounterID(booking.ReceiptSequence, "012025"), 7)
	n := booking.NewNumberer(mem, booking.FixedClock(testNow), nil)

	// WHEN: Generating in January
	ref, err := n.Generate(context.Background(), booking.ReservationSequence)
	require.NoError(t, err)
	receipt, err := n.Generate(context.Background(), booking.ReceiptSequence)
	require.NoError(t, err)

	// THEN: Both continue at 8
	assert.Equal(t, "012025-008", ref)
	assert.Equal(t, "PAY-012025-00008", receipt)
}

func TestGenerate_NewPeriodStartsAtOne(t *testing.T) {
	mem := store.NewMemory()
	mem.SetCounter(booking.CounterID(booking.ReceiptSequence, "012025"), 41)
	n := booking.NewNumberer(mem, booking.FixedClock(testNow), nil)

	id, err := n.GenerateAt(context.Background(), booking.ReceiptSequence, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, "PAY-022025-00001", id)
}

func TestGenerate_SequencesDoNotShareCounters(t *testing.T) {
	n := booking.NewNumberer(store.NewMemory(), booking.FixedClock(testNow), nil)

	ref, err := n.Generate(context.Background(), booking.ReservationSequence)
	require.NoError(t, err)
	receipt, err := n.Generate(context.Background(), booking.ReceiptSequence)
	require.NoError(t, err)

	assert.Equal(t, "012025-001", ref)
	assert.Equal(t, "PAY-012025-00001", receipt)
}

func TestGenerate_ConcurrentCallsAreUnique(t *testing.T) {
	// GIVEN: Many callers racing on the same period
	n := booking.NewNumberer(store.NewMemory(), booking.FixedClock(testNow), nil)
	const callers = 50

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := n.Generate(context.Background(), booking.ReceiptSequence)
			assert.NoError(t, err)
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	// THEN: Every identifier is distinct and sequential
	assert.Len(t, seen, callers)
	assert.True(t, seen["PAY-012025-00001"])
	assert.True(t, seen["PAY-012025-00050"])
}

func TestGenerate_FallsBackAfterRetries(t *testing.T) {
	// GIVEN: A counter store that always fails
	counters := &failingCounters{}
	n := booking.NewNumberer(counters, booking.FixedClock(testNow), nil)
	n.MaxAttempts = 3
	n.BaseBackoff = time.Millisecond

	// WHEN: Generating
	id, err := n.Generate(context.Background(), booking.ReceiptSequence)

	// THEN: A fallback identifier is returned without error
	require.NoError(t, err)
	assert.Equal(t, 3, counters.calls)
	assert.True(t, booking.IsFallback(id))
	assert.True(t, strings.HasPrefix(id, "PAY-012025-T"), id)

	_, err = booking.Parse(id)
	assert.ErrorIs(t, err, booking.ErrFallbackIdentifier)
	assert.ErrorIs(t, err, booking.ErrValidation)
}

func TestGenerate_FallbackIdentifiersAreDistinct(t *testing.T) {
	n := booking.NewNumberer(&failingCounters{}, booking.FixedClock(testNow), nil)
	n.MaxAttempts = 1

	a, err := n.Generate(context.Background(), booking.ReservationSequence)
	require.NoError(t, err)
	b, err := n.Generate(context.Background(), booking.ReservationSequence)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "012025-T"), a)
}

func TestGenerate_CancelledContext(t *testing.T) {
	n := booking.NewNumberer(&failingCounters{}, booking.FixedClock(testNow), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := n.Generate(ctx, booking.ReceiptSequence)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestParse(t *testing.T) {
	id, err := booking.Parse("PAY-012025-00008")
	require.NoError(t, err)
	assert.Equal(t, booking.Identifier{Prefix: "PAY", Period: "012025", Counter: 8}, id)

	id, err = booking.Parse("012025-008")
	require.NoError(t, err)
	assert.Equal(t, booking.Identifier{Period: "012025", Counter: 8}, id)

	id, err = booking.Parse("INV-15012025-123456")
	require.NoError(t, err)
	assert.Equal(t, int64(123456), id.Counter)
}

func TestParse_RejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"PAY012025",
		"pay-012025-00001",
		"PAY-132025-00001",
		"PAY-01202-00001",
		"PAY-012025-01",
		"PAY-012025-000",
		"PAY-012025-0a001",
		"PAY-X-012025-00001",
		"P4Y-012025-00001",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := booking.Parse(raw)
			assert.ErrorIs(t, err, booking.ErrValidation)
			assert.NotErrorIs(t, err, booking.ErrFallbackIdentifier)
		})
	}
}
