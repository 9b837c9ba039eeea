package analysis

import (
	"math"
	"sort"

	"github.com/kickai/cv-processing-service/internal/domain/entity"
)

// Config holds the classifier's implementation-defined detection parameters.
// Speeds are in torso-lengths per second, which keeps thresholds independent
// of camera distance.
type Config struct {
	// WindowSize is W, the bounded per-person pose history.
	WindowSize int

	// WindupSpeed is the limb speed that moves a person out of IDLE.
	WindupSpeed float64

	// StrikeSpeed is the limb speed that confirms a strike.
	StrikeSpeed float64

	// RecoverySpeed is the floor below which a strike motion has ended.
	RecoverySpeed float64

	// IdleSpeed is the floor below which a person has settled back to IDLE;
	// also aborts a windup that never reached strike speed.
	IdleSpeed float64

	// MinKeypointConfidence is the limb confidence floor under which a
	// detected strike is reported as UNKNOWN rather than typed.
	MinKeypointConfidence float64
}

func DefaultConfig() Config {
	return Config{
		WindowSize:            15,
		WindupSpeed:           1.5,
		StrikeSpeed:           3.0,
		RecoverySpeed:         1.5,
		IdleSpeed:             0.75,
		MinKeypointConfidence: 0.3,
	}
}

type phase uint8

const (
	phaseIdle phase = iota
	phaseWindup
	phaseStrike
	phaseRecovery
)

// candidate is a strike being built while a person moves through
// WINDUP and STRIKE.
type candidate struct {
	startFrame int
	limb       limb
	peakSpeed  float64
	confSum    float64
	confN      int
}

func (c *candidate) observe(l limb, speed, conf float64) {
	if speed > c.peakSpeed {
		c.peakSpeed = speed
		c.limb = l
	}
	c.confSum += conf
	c.confN++
}

func (c *candidate) meanConf() float64 {
	if c.confN == 0 {
		return 0
	}
	return c.confSum / float64(c.confN)
}

type personState struct {
	window    *slidingWindow
	phase     phase
	cand      candidate
	pending   *entity.StrikeEvent
	lastFrame int
}

// Classifier consumes ordered pose estimates and emits strike events. It
// runs one explicit state machine per tracked person:
//
//	IDLE -> WINDUP -> STRIKE -> RECOVERY -> IDLE
//
// driven by normalized keypoint velocity. A finalized event is held pending
// until the person settles or a non-overlapping candidate lands; overlapping
// candidates for the same person keep only the higher confidence.
type Classifier struct {
	cfg     Config
	persons map[int]*personState
}

func NewClassifier(cfg Config) *Classifier {
	if cfg.WindowSize < 1 {
		cfg.WindowSize = 1
	}
	return &Classifier{cfg: cfg, persons: make(map[int]*personState)}
}

// Observe feeds one pose estimate, in frame order per person, and returns at
// most one finalized strike event.
func (c *Classifier) Observe(pose entity.PoseEstimate, timestamp float64) (entity.StrikeEvent, bool) {
	ps := c.person(pose.PersonID)
	ps.window.push(observation{pose: pose, timestamp: timestamp})
	ps.lastFrame = pose.FrameIndex

	prev, cur, ok := ps.window.last2()
	if !ok {
		return entity.StrikeEvent{}, false
	}
	speeds, confs, ok := limbSpeeds(prev, cur)
	if !ok {
		return entity.StrikeEvent{}, false
	}
	dom, speed := dominantLimb(speeds)

	switch ps.phase {
	case phaseIdle:
		if speed >= c.cfg.WindupSpeed {
			ps.phase = phaseWindup
			ps.cand = candidate{startFrame: prev.pose.FrameIndex, limb: dom, peakSpeed: speed}
			ps.cand.confSum = confs[dom]
			ps.cand.confN = 1
		}

	case phaseWindup:
		switch {
		case speed >= c.cfg.StrikeSpeed:
			ps.phase = phaseStrike
			ps.cand.observe(dom, speed, confs[dom])
		case speed < c.cfg.IdleSpeed:
			// Never reached strike speed; not a strike.
			ps.phase = phaseIdle
		default:
			ps.cand.observe(dom, speed, confs[dom])
		}

	case phaseStrike:
		if speed < c.cfg.RecoverySpeed {
			ps.phase = phaseRecovery
			ev := c.finalize(pose.PersonID, ps.cand, cur.pose.FrameIndex)
			return c.settle(ps, ev)
		}
		ps.cand.observe(dom, speed, confs[dom])

	case phaseRecovery:
		switch {
		case speed < c.cfg.IdleSpeed:
			ps.phase = phaseIdle
			return c.flushPending(ps)
		case speed >= c.cfg.WindupSpeed:
			// Combo: a new strike starting before the previous one idled.
			ps.phase = phaseWindup
			ps.cand = candidate{startFrame: prev.pose.FrameIndex, limb: dom, peakSpeed: speed}
			ps.cand.confSum = confs[dom]
			ps.cand.confN = 1
		}
	}

	return entity.StrikeEvent{}, false
}

// Flush finalizes in-flight strikes and releases all pending events at
// stream end, in person-ID order.
func (c *Classifier) Flush() []entity.StrikeEvent {
	ids := make([]int, 0, len(c.persons))
	for id := range c.persons {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var out []entity.StrikeEvent
	for _, id := range ids {
		ps := c.persons[id]
		if ps.phase == phaseStrike {
			ev := c.finalize(id, ps.cand, ps.lastFrame)
			if flushed, ok := c.settle(ps, ev); ok {
				out = append(out, flushed)
			}
			ps.phase = phaseIdle
		}
		if ps.pending != nil {
			out = append(out, *ps.pending)
			ps.pending = nil
		}
	}
	return out
}

func (c *Classifier) person(id int) *personState {
	ps, ok := c.persons[id]
	if !ok {
		ps = &personState{window: newSlidingWindow(c.cfg.WindowSize)}
		c.persons[id] = ps
	}
	return ps
}

// finalize turns a candidate into a strike event. Confidence is the peak
// speed relative to twice the strike threshold, scaled by the mean limb
// keypoint confidence, clamped to [0,1]; identical inputs always yield the
// identical event.
func (c *Classifier) finalize(personID int, cand candidate, endFrame int) entity.StrikeEvent {
	speedScore := cand.peakSpeed / (2 * c.cfg.StrikeSpeed)
	conf := speedScore * cand.meanConf()
	conf = math.Max(0, math.Min(1, conf))

	typ := cand.limb.strikeType()
	if cand.meanConf() < c.cfg.MinKeypointConfidence {
		typ = entity.StrikeUnknown
	}

	return entity.StrikeEvent{
		StartFrame: cand.startFrame,
		EndFrame:   endFrame,
		StrikeType: typ,
		Confidence: conf,
		PersonID:   personID,
	}
}

// settle applies the overlap tie-break: an event overlapping the person's
// pending one replaces it only when its confidence is higher; a
// non-overlapping event releases the pending one.
func (c *Classifier) settle(ps *personState, ev entity.StrikeEvent) (entity.StrikeEvent, bool) {
	if ps.pending == nil {
		ps.pending = &ev
		return entity.StrikeEvent{}, false
	}
	if ps.pending.Overlaps(ev) {
		if ev.Confidence > ps.pending.Confidence {
			ps.pending = &ev
		}
		return entity.StrikeEvent{}, false
	}
	released := *ps.pending
	ps.pending = &ev
	return released, true
}

func (c *Classifier) flushPending(ps *personState) (entity.StrikeEvent, bool) {
	if ps.pending == nil {
		return entity.StrikeEvent{}, false
	}
	ev := *ps.pending
	ps.pending = nil
	return ev, true
}
