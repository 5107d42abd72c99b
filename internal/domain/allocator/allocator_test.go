package allocator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSequential_FillsInOrder(t *testing.T) {
	// $1200 payment against invoices of $1000 and $500
	slots := []Slot{
		{ObligationID: "O1", Remaining: d("1000")},
		{ObligationID: "O2", Remaining: d("500")},
	}

	result, err := Sequential(d("1200"), slots)
	require.NoError(t, err)

	assert.True(t, d("1000").Equal(result.Allocations[0].Amount))
	assert.True(t, d("200").Equal(result.Allocations[1].Amount))
	assert.True(t, d("1200").Equal(result.TotalAllocated))
	assert.True(t, result.Unallocated.IsZero())
}

func TestSequential_Overpayment(t *testing.T) {
	slots := []Slot{{ObligationID: "O1", Remaining: d("1000")}}

	result, err := Sequential(d("1100"), slots)
	require.NoError(t, err)

	assert.True(t, d("1000").Equal(result.TotalAllocated))
	assert.True(t, d("100").Equal(result.Unallocated))
}

func TestSequential_PartialPayment(t *testing.T) {
	slots := []Slot{
		{ObligationID: "O3", Remaining: d("1000")},
	}

	result, err := Sequential(d("600"), slots)
	require.NoError(t, err)

	assert.True(t, d("600").Equal(result.Allocations[0].Amount))
	assert.True(t, result.Unallocated.IsZero())
}

func TestProRata_Proportional(t *testing.T) {
	// $900 across $1000 and $500 remaining => 2:1
	slots := []Slot{
		{ObligationID: "O1", Remaining: d("1000")},
		{ObligationID: "O2", Remaining: d("500")},
	}

	result, err := ProRata(d("900"), slots)
	require.NoError(t, err)

	assert.True(t, d("600").Equal(result.Allocations[0].Amount))
	assert.True(t, d("300").Equal(result.Allocations[1].Amount))
	assert.True(t, d("900").Equal(result.TotalAllocated))
}

func TestProRata_RoundingAdjustment(t *testing.T) {
	// Thirds do not divide evenly into cents
	slots := []Slot{
		{ObligationID: "A", Remaining: d("100")},
		{ObligationID: "B", Remaining: d("100")},
		{ObligationID: "C", Remaining: d("100")},
	}

	result, err := ProRata(d("100"), slots)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, a := range result.Allocations {
		sum = sum.Add(a.Amount)
		assert.True(t, a.Amount.LessThanOrEqual(d("100")))
	}
	assert.True(t, d("100").Equal(sum), "allocations should total exactly 100, got %s", sum)
	assert.True(t, result.Unallocated.IsZero())
}

func TestProRata_CoversEverything(t *testing.T) {
	slots := []Slot{
		{ObligationID: "O1", Remaining: d("40")},
		{ObligationID: "O2", Remaining: d("60")},
	}

	result, err := ProRata(d("150"), slots)
	require.NoError(t, err)

	assert.True(t, d("40").Equal(result.Allocations[0].Amount))
	assert.True(t, d("60").Equal(result.Allocations[1].Amount))
	assert.True(t, d("50").Equal(result.Unallocated))
}

func TestAllocate_Dispatch(t *testing.T) {
	slots := []Slot{{ObligationID: "O1", Remaining: d("10")}}

	t.Run("empty strategy is sequential", func(t *testing.T) {
		result, err := Allocate("", d("5"), slots)
		require.NoError(t, err)
		got := result.AsMap()
		require.Contains(t, got, "O1")
		assert.True(t, d("5").Equal(got["O1"]))
	})

	t.Run("unknown strategy", func(t *testing.T) {
		_, err := Allocate("lifo", d("5"), slots)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown allocation strategy")
	})
}

func TestAllocate_ErrorCases(t *testing.T) {
	t.Run("no slots", func(t *testing.T) {
		_, err := Sequential(d("100"), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no obligations")
	})

	t.Run("negative amount", func(t *testing.T) {
		_, err := ProRata(d("-1"), []Slot{{ObligationID: "O1", Remaining: d("10")}})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "negative")
	})

	t.Run("negative remaining", func(t *testing.T) {
		_, err := Sequential(d("1"), []Slot{{ObligationID: "O1", Remaining: d("-10")}})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "negative")
	})
}

func BenchmarkProRata(b *testing.B) {
	slots := make([]Slot, 20)
	for i := range slots {
		slots[i] = Slot{ObligationID: "O", Remaining: decimal.NewFromInt(int64(10 + i))}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ProRata(decimal.NewFromInt(250), slots)
	}
}
