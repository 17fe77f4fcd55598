package ratio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Reduces(t *testing.T) {
	cases := []struct {
		num, den int64
		want     Ratio
	}{
		{2, 1, Ratio{2, 1}},
		{4, 2, Ratio{2, 1}},
		{3, 9, Ratio{1, 3}},
		{6, 4, Ratio{3, 2}},
		{7, 7, Ratio{1, 1}},
	}
	for _, c := range cases {
		got, err := New(c.num, c.den)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%d/%d", c.num, c.den)
	}

	_, err := New(0, 1)
	assert.Error(t, err)
	_, err = New(1, -2)
	assert.Error(t, err)
}

func TestInverse_IsReciprocal(t *testing.T) {
	r, _ := New(6, 4)
	assert.Equal(t, Ratio{2, 3}, r.Inverse())
	got, err := r.Mul(r.Inverse())
	require.NoError(t, err)
	assert.Equal(t, One, got)
}

func TestCompose_OrderIndependentAndReduced(t *testing.T) {
	a, _ := New(2, 1)
	b, _ := New(1, 3)
	c, _ := New(9, 4)

	abc, err := Compose(a, b, c)
	require.NoError(t, err)
	assert.Equal(t, Ratio{3, 2}, abc)
	cba, err := Compose(c, b, a)
	require.NoError(t, err)
	assert.Equal(t, abc, cba)
	assert.Equal(t, GCD(abc.Num, abc.Den), int64(1))
	none, err := Compose()
	require.NoError(t, err)
	assert.Equal(t, One, none)
}

func TestCompose_Overflow(t *testing.T) {
	big, _ := New(math.MaxInt64/2, 1)
	three, _ := New(3, 1)

	_, err := Compose(big, three)
	require.ErrorIs(t, err, ErrOverflow)
	_, err = Compose(big.Inverse(), three.Inverse())
	require.ErrorIs(t, err, ErrOverflow)

	// cross reduction keeps this one in range
	r, err := Compose(big, three.Inverse(), three)
	require.NoError(t, err)
	assert.Equal(t, big, r)
}

func TestUnitsAndProduce(t *testing.T) {
	r, _ := New(4, 3)
	assert.Equal(t, int64(9), r.Units(10))
	assert.Equal(t, int64(0), r.Units(2))
	assert.Equal(t, int64(0), r.Units(-5))
	assert.Equal(t, int64(12), r.Produce(9))

	n, ok := r.ProduceWithin(9, 12)
	assert.True(t, ok)
	assert.Equal(t, int64(12), n)
	_, ok = r.ProduceWithin(12, 12)
	assert.False(t, ok)
	_, ok = r.ProduceWithin(math.MaxInt64-1, math.MaxInt64)
	assert.False(t, ok)
}
