package convert

import (
	"fmt"

	"github.com/deepskill/pgnconv/internal/schema"
	"github.com/deepskill/pgnconv/internal/table"
	"github.com/deepskill/pgnconv/pkg/models"
	"github.com/rs/zerolog"
)

// Consumer turns PGN parse events into table rows. It owns a single
// GameRecord that is filled by Header, emitted by EndGame and then reset.
// A Consumer serves one archive and is not safe for concurrent use.
type Consumer struct {
	w        table.RowWriter
	rec      *models.GameRecord
	games    int64
	interval int64
	logger   zerolog.Logger
}

// NewConsumer returns a Consumer writing to w. A progress line is logged
// every interval games; zero disables progress logging.
func NewConsumer(w table.RowWriter, interval int64, logger zerolog.Logger) *Consumer {
	return &Consumer{
		w:        w,
		rec:      models.NewGameRecord(schema.Len()),
		interval: interval,
		logger:   logger,
	}
}

// Header keeps the raw value of a recognized tag. A repeated tag replaces
// the earlier value; unrecognized tags are dropped.
func (c *Consumer) Header(key, value []byte) {
	if i, ok := schema.Index(key); ok {
		c.rec.Set(i, value)
	}
}

// EndGame writes the current game as one row, even when no recognized tag
// was seen.
func (c *Consumer) EndGame() error {
	if err := c.w.WriteRow(c.rec); err != nil {
		return fmt.Errorf("failed to write game %d: %w", c.games+1, err)
	}
	c.games++

	if c.interval > 0 && c.games%c.interval == 0 {
		c.logger.Info().Int64("games", c.games).Msgf("Game number: %d", c.games)
	}

	c.rec.Reset()
	return nil
}

// Games returns the number of games written so far
func (c *Consumer) Games() int64 {
	return c.games
}
