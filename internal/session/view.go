package session

import "fmt"

// Cursor points at the live artifact or at one history index. The zero
// value is Live.
type Cursor struct {
	historical bool
	index      int
}

// Live returns the cursor that follows the live artifact.
func Live() Cursor { return Cursor{} }

// At returns a cursor on history index i.
func At(i int) Cursor { return Cursor{historical: true, index: i} }

// IsLive reports whether c follows the live artifact.
func (c Cursor) IsLive() bool { return !c.historical }

// Index returns the history index and whether c is a history cursor.
func (c Cursor) Index() (int, bool) { return c.index, c.historical }

// Normalize returns Live when c does not point inside a history of length n.
func (c Cursor) Normalize(n int) Cursor {
	if !c.historical || c.index < 0 || c.index >= n {
		return Live()
	}
	return c
}

func (c Cursor) String() string {
	if !c.historical {
		return "live"
	}
	return fmt.Sprintf("history[%d]", c.index)
}

// Previous moves one step back in history. From live it lands on the most
// recent entry; it never goes below index 0. With an empty history the
// cursor is returned normalized.
func Previous(c Cursor, n int) Cursor {
	if n == 0 {
		return Live()
	}
	c = c.Normalize(n)
	if !c.historical {
		return At(n - 1)
	}
	if c.index == 0 {
		return c
	}
	return At(c.index - 1)
}

// Next moves one step forward. Past the last entry it returns to live; from
// live it stays live.
func Next(c Cursor, n int) Cursor {
	c = c.Normalize(n)
	if !c.historical || c.index == n-1 {
		return Live()
	}
	return At(c.index + 1)
}

// Display is what the render target should show.
type Display struct {
	Image         string
	Caption       string
	IsLive        bool
	PositionLabel string
}

// Resolve derives the display tuple from the cursor, history and live artifact.
func Resolve(c Cursor, history []HistoryEntry, live LiveArtifact) Display {
	c = c.Normalize(len(history))
	if !c.historical {
		return Display{
			Image:   live.URL,
			Caption: live.Caption,
			IsLive:  true,
		}
	}
	e := history[c.index]
	return Display{
		Image:         e.ArtifactRef,
		Caption:       e.Question,
		PositionLabel: fmt.Sprintf("%d of %d", c.index+1, len(history)),
	}
}
