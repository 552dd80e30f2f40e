package convert

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/deepskill/pgnconv/internal/schema"
	"github.com/deepskill/pgnconv/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memWriter keeps rows in memory. A nil value slot is an absent field.
type memWriter struct {
	rows    [][]*string
	err     error
	discard bool
	n       int64
}

func (m *memWriter) WriteHeader() error { return nil }

func (m *memWriter) WriteRow(rec *models.GameRecord) error {
	if m.err != nil {
		return m.err
	}
	m.n++
	if m.discard {
		return nil
	}
	row := make([]*string, rec.Len())
	for i := range rec.Values {
		if rec.Present[i] {
			v := string(rec.Values[i])
			row[i] = &v
		}
	}
	m.rows = append(m.rows, row)
	return nil
}

func (m *memWriter) Rows() int64  { return m.n }
func (m *memWriter) Close() error { return nil }

func col(t *testing.T, name string) int {
	t.Helper()
	i, ok := schema.Index([]byte(name))
	require.True(t, ok, name)
	return i
}

func TestConsumer_TwoGames(t *testing.T) {
	w := &memWriter{}
	c := NewConsumer(w, 0, zerolog.Nop())

	c.Header([]byte("Event"), []byte("Rated Blitz"))
	c.Header([]byte("Site"), []byte("https://lichess.org/abc"))
	c.Header([]byte("White"), []byte("alice"))
	c.Header([]byte("Result"), []byte("1-0"))
	require.NoError(t, c.EndGame())

	c.Header([]byte("Site"), []byte("https://lichess.org/def"))
	c.Header([]byte("Annotator"), []byte("bob"))
	require.NoError(t, c.EndGame())

	require.Len(t, w.rows, 2)
	assert.Equal(t, int64(2), c.Games())

	first := w.rows[0]
	require.Len(t, first, schema.Len())
	assert.Equal(t, "Rated Blitz", *first[col(t, "Event")])
	assert.Equal(t, "alice", *first[col(t, "White")])
	assert.Equal(t, "1-0", *first[col(t, "Result")])
	assert.Nil(t, first[col(t, "Black")])

	for i, v := range w.rows[1] {
		assert.Nil(t, v, "column %s should be absent", schema.Name(i))
	}
}

func TestConsumer_DuplicateTagLastWins(t *testing.T) {
	w := &memWriter{}
	c := NewConsumer(w, 0, zerolog.Nop())

	c.Header([]byte("White"), []byte("a much longer first name"))
	c.Header([]byte("White"), []byte("bob"))
	require.NoError(t, c.EndGame())

	assert.Equal(t, "bob", *w.rows[0][col(t, "White")])
}

func TestConsumer_ResetBetweenGames(t *testing.T) {
	w := &memWriter{}
	c := NewConsumer(w, 0, zerolog.Nop())

	c.Header([]byte("Opening"), []byte("Sicilian Defense"))
	require.NoError(t, c.EndGame())
	c.Header([]byte("Event"), []byte("Casual"))
	require.NoError(t, c.EndGame())

	assert.Equal(t, "Sicilian Defense", *w.rows[0][col(t, "Opening")])
	assert.Nil(t, w.rows[1][col(t, "Opening")])
	assert.Equal(t, "Casual", *w.rows[1][col(t, "Event")])
}

func TestConsumer_TagNamesAreCaseSensitive(t *testing.T) {
	w := &memWriter{}
	c := NewConsumer(w, 0, zerolog.Nop())

	c.Header([]byte("event"), []byte("lower"))
	c.Header([]byte("WHITE"), []byte("upper"))
	require.NoError(t, c.EndGame())

	for _, v := range w.rows[0] {
		assert.Nil(t, v)
	}
}

func TestConsumer_ValueIsCopied(t *testing.T) {
	w := &memWriter{}
	c := NewConsumer(w, 0, zerolog.Nop())

	buf := []byte("alice")
	c.Header([]byte("White"), buf)
	copy(buf, "XXXXX")
	require.NoError(t, c.EndGame())

	assert.Equal(t, "alice", *w.rows[0][col(t, "White")])
}

func TestConsumer_WriteErrorPropagates(t *testing.T) {
	boom := errors.New("no space left on device")
	c := NewConsumer(&memWriter{err: boom}, 0, zerolog.Nop())

	err := c.EndGame()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), c.Games())
}

func TestConsumer_ProgressLines(t *testing.T) {
	tests := []struct {
		games int
		lines []string
	}{
		{99999, nil},
		{100000, []string{"Game number: 100000"}},
		{250000, []string{"Game number: 100000", "Game number: 200000"}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d games", tt.games), func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)
			c := NewConsumer(&memWriter{discard: true}, 100000, logger)

			for i := 0; i < tt.games; i++ {
				require.NoError(t, c.EndGame())
			}

			var got []string
			for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
				if line == "" {
					continue
				}
				assert.Contains(t, line, `"level":"info"`)
				start := strings.Index(line, `"message":"`) + len(`"message":"`)
				end := strings.Index(line[start:], `"`)
				got = append(got, line[start:start+end])
			}
			assert.Equal(t, tt.lines, got)
		})
	}
}

func TestConsumer_ProgressDisabled(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsumer(&memWriter{discard: true}, 0, zerolog.New(&buf))

	for i := 0; i < 1000; i++ {
		require.NoError(t, c.EndGame())
	}
	assert.Empty(t, buf.String())
}
