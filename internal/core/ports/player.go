package ports

// Progress is one player progress tick.
type Progress struct {
	PlayedSeconds  float64
	PlayedFraction float64
}

// ProgressFunc receives progress ticks at a steady sub-second cadence while
// the player is playing.
type ProgressFunc func(Progress)

// PlayerControl is the local media player widget. Calls on an uninitialized
// player are no-ops; the next state update tries again naturally.
type PlayerControl interface {
	SeekTo(seconds float64)
	CurrentTime() float64
	Play()
	Pause()
	OnProgress(fn ProgressFunc)
}
