package player

import (
	"sync"
	"time"

	"watchsync/internal/core/domain"
	"watchsync/internal/core/ports"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// DefaultTickInterval matches the sub-second progress cadence of a real
// player widget.
const DefaultTickInterval = 250 * time.Millisecond

// Virtual is a headless ports.PlayerControl. It advances a playhead against
// a clock while playing and emits progress ticks, standing in for an embedded
// player widget in the agent and in tests.
//
// Control calls before Load are no-ops, mirroring a player whose media has
// not attached yet.
type Virtual struct {
	clock  clockwork.Clock
	logger *zap.SugaredLogger

	mu       sync.Mutex
	loaded   bool
	videoID  domain.VideoID
	duration float64
	position float64
	playing  bool
	anchor   time.Time
	onTick   ports.ProgressFunc

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewVirtual builds a virtual player and starts its progress loop.
func NewVirtual(clock clockwork.Clock, logger *zap.SugaredLogger) *Virtual {
	p := &Virtual{
		clock:  clock,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	// Register the ticker before returning so a fake clock advanced
	// immediately after construction still delivers the first tick.
	ticker := clock.NewTicker(DefaultTickInterval)
	go p.run(ticker)
	return p
}

// Load attaches media with the given duration and rewinds the playhead.
// A zero duration means the duration is unknown.
func (p *Virtual) Load(duration float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadLocked("", duration)
}

// LoadMedia attaches the given video unless it is already loaded. A repeat
// call with the same video only refreshes the duration, leaving the playhead
// where it is, so per-frame calls are safe.
func (p *Virtual) LoadMedia(videoID domain.VideoID, duration float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded && p.videoID == videoID && videoID != "" {
		if duration > 0 && p.duration != duration {
			p.duration = duration
			p.position = domain.ClampPosition(p.position, duration)
		}
		return
	}
	p.loadLocked(videoID, duration)
}

func (p *Virtual) loadLocked(videoID domain.VideoID, duration float64) {
	p.loaded = true
	p.videoID = videoID
	p.duration = duration
	p.position = 0
	p.playing = false
	p.logger.Debugw("media loaded", "video_id", videoID, "duration", duration)
}

// Unload detaches media; further control calls become no-ops.
func (p *Virtual) Unload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = false
	p.videoID = ""
	p.playing = false
	p.position = 0
}

// SeekTo moves the playhead, clamped into the media bounds.
func (p *Virtual) SeekTo(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return
	}
	p.position = domain.ClampPosition(seconds, p.duration)
	p.anchor = p.clock.Now()
}

// CurrentTime returns the playhead position.
func (p *Virtual) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playheadLocked(p.clock.Now())
}

// Play resumes playback.
func (p *Virtual) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded || p.playing {
		return
	}
	p.playing = true
	p.anchor = p.clock.Now()
}

// Pause freezes the playhead.
func (p *Virtual) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded || !p.playing {
		return
	}
	p.position = p.playheadLocked(p.clock.Now())
	p.playing = false
}

// OnProgress installs the progress tick callback.
func (p *Virtual) OnProgress(fn ports.ProgressFunc) {
	p.mu.Lock()
	p.onTick = fn
	p.mu.Unlock()
}

// Playing reports whether the playhead is advancing.
func (p *Virtual) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Close stops the progress loop.
func (p *Virtual) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// playheadLocked folds elapsed wall time into the stored position. Caller
// must hold p.mu.
func (p *Virtual) playheadLocked(now time.Time) float64 {
	if !p.playing {
		return p.position
	}
	pos := p.position + now.Sub(p.anchor).Seconds()
	return domain.ClampPosition(pos, p.duration)
}

func (p *Virtual) run(ticker clockwork.Ticker) {
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.Chan():
			p.tick()
		}
	}
}

func (p *Virtual) tick() {
	p.mu.Lock()
	if !p.loaded || !p.playing {
		p.mu.Unlock()
		return
	}

	now := p.clock.Now()
	pos := p.playheadLocked(now)
	p.position = pos
	p.anchor = now

	// Ran off the end of the media.
	if p.duration > 0 && pos >= p.duration {
		p.playing = false
	}

	fn := p.onTick
	fraction := 0.0
	if p.duration > 0 {
		fraction = pos / p.duration
	}
	p.mu.Unlock()

	if fn != nil {
		fn(ports.Progress{PlayedSeconds: pos, PlayedFraction: fraction})
	}
}
