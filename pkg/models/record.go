package models

// GameRecord holds the recognized header values of the game currently being
// parsed. Slots follow the column order of the field schema.
//
// A record is reused across games: Reset keeps the backing arrays so a long
// archive does not allocate per game.
type GameRecord struct {
	Values  [][]byte
	Present []bool
}

// NewGameRecord creates an empty record with n slots
func NewGameRecord(n int) *GameRecord {
	return &GameRecord{
		Values:  make([][]byte, n),
		Present: make([]bool, n),
	}
}

// Len returns the number of slots
func (r *GameRecord) Len() int {
	return len(r.Values)
}

// Set copies v into slot i, replacing any earlier value
func (r *GameRecord) Set(i int, v []byte) {
	r.Values[i] = append(r.Values[i][:0], v...)
	r.Present[i] = true
}

// Reset clears all slots for the next game
func (r *GameRecord) Reset() {
	for i := range r.Values {
		r.Values[i] = r.Values[i][:0]
		r.Present[i] = false
	}
}
