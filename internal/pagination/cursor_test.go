package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	cur := Encode(ts, "le_abc123")

	decoded, err := Decode(cur)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.True(t, decoded.CreatedAt.Equal(ts))
	assert.Equal(t, "le_abc123", decoded.ID)
}

func TestDecode_Empty(t *testing.T) {
	decoded, err := Decode("")
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode("not-base64!!!")
	assert.Error(t, err)

	_, err = Decode("aGVsbG8=") // valid base64, no separator
	assert.Error(t, err)
}

func TestComputePage(t *testing.T) {
	type item struct {
		id string
		at time.Time
	}
	base := time.Now().UTC()
	items := []item{
		{"a", base},
		{"b", base.Add(time.Second)},
		{"c", base.Add(2 * time.Second)},
	}

	// Fetched limit+1 -> has more
	page, next, more := ComputePage(items, 2, func(i item) (time.Time, string) { return i.at, i.id })
	assert.Len(t, page, 2)
	assert.True(t, more)
	assert.NotEmpty(t, next)

	// Exactly limit -> no more
	page, next, more = ComputePage(items, 3, func(i item) (time.Time, string) { return i.at, i.id })
	assert.Len(t, page, 3)
	assert.False(t, more)
	assert.Empty(t, next)
}
