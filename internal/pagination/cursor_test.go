package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var singapore = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Singapore")
	if err != nil {
		panic(err)
	}
	return loc
}()

func TestCursor_RoundTripInLedgerZone(t *testing.T) {
	ts := time.Date(2026, 3, 14, 15, 9, 0, 0, singapore)
	c := Cursor{Timestamp: ts, TxID: "tx_0195a1b2c3d4"}

	got, err := Decode(c.Encode(), singapore)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, ts.Equal(got.Timestamp))
	assert.Equal(t, singapore, got.Timestamp.Location())
	assert.Equal(t, "tx_0195a1b2c3d4", got.TxID)
}

func TestDecode_EmptyIsNoCursor(t *testing.T) {
	c, err := Decode("", singapore)
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecode_Rejects(t *testing.T) {
	b64 := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	for name, in := range map[string]string{
		"not base64":     "garbage!!!",
		"no separators":  b64("nopipe"),
		"wrong tag":      b64("gw|1773472140000000000|tx_1"),
		"bad timestamp":  b64("tx|yesterday|tx_1"),
		"missing tx id":  b64("tx|1773472140000000000|"),
		"two parts only": b64("tx|1773472140000000000"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(in, singapore)
			assert.ErrorIs(t, err, ErrInvalidCursor)
		})
	}
}

func TestCursor_FollowsNewestFirst(t *testing.T) {
	at := time.Date(2026, 3, 14, 15, 9, 0, 0, singapore)
	c := Cursor{Timestamp: at, TxID: "tx_m"}

	assert.True(t, c.Follows(at.Add(-time.Minute), "tx_z"), "older row")
	assert.False(t, c.Follows(at.Add(time.Minute), "tx_a"), "newer row")
	assert.True(t, c.Follows(at, "tx_a"), "same minute, smaller id")
	assert.False(t, c.Follows(at, "tx_m"), "the cursor row itself")
	assert.False(t, c.Follows(at, "tx_z"), "same minute, larger id")
}

type row struct {
	id string
	at time.Time
}

func rowKey(r row) Cursor { return Cursor{Timestamp: r.at, TxID: r.id} }

func TestComputePage(t *testing.T) {
	at := time.Date(2026, 3, 14, 15, 9, 0, 0, singapore)
	rows := []row{{"tx_d", at}, {"tx_c", at}, {"tx_b", at.Add(-time.Minute)}, {"tx_a", at.Add(-2 * time.Minute)}}

	page, next, more := ComputePage(rows, 3, rowKey)
	assert.Len(t, page, 3)
	assert.True(t, more)
	c, err := Decode(next, singapore)
	require.NoError(t, err)
	assert.Equal(t, "tx_b", c.TxID)

	page, next, more = ComputePage(rows[:3], 3, rowKey)
	assert.Len(t, page, 3)
	assert.Empty(t, next)
	assert.False(t, more)
}
