package discussion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/roundtable/internal/assessment"
	"github.com/ent0n29/roundtable/internal/personas"
)

const (
	defaultTimeLimit     = 10 * time.Minute
	defaultReportTimeout = 2 * time.Minute
)

// StartRequest configures a new discussion.
type StartRequest struct {
	Topic         string
	APIKey        string
	CandidateName string
	TimeLimit     time.Duration
}

// Options wires a Controller to its collaborators.
type Options struct {
	ID               string
	Personas         []personas.Persona
	Generators       GeneratorFactory
	Speech           Speech
	Notify           func(Notice)
	Now              func() time.Time
	DefaultTimeLimit time.Duration
	ReportTimeout    time.Duration
}

// Controller owns one discussion: its SessionState, transcript and report.
//
// Every input is turned into an event and passed through apply, the single
// transition function, while holding mu. apply never performs I/O; it returns
// the side effects (provider calls, speech) which run after the lock is
// released. Provider results come back as events tagged with the epoch they
// were issued under, so a result that lands after a reset or the timer's end
// is dropped instead of being appended.
type Controller struct {
	id             string
	personas       []personas.Persona
	newGenerator   GeneratorFactory
	speech         Speech
	notify         func(Notice)
	now            func() time.Time
	defaultSeconds int
	reportTimeout  time.Duration

	mu              sync.Mutex
	phase           Phase
	topic           string
	humanName       string
	gen             Generator
	scheduler       Scheduler
	countdown       Countdown
	points          TalkingPointSet
	cursors         PointCursors
	transcript      Transcript
	contributions   int
	pending         bool
	starting        bool
	reportPending   bool
	noContributions bool
	lastError       string
	epoch           uint64
	report          *assessment.Report
}

func NewController(opts Options) (*Controller, error) {
	if len(opts.Personas) != Seats-1 {
		return nil, fmt.Errorf("discussion: need %d personas, got %d", Seats-1, len(opts.Personas))
	}
	if opts.Generators == nil {
		return nil, errors.New("discussion: generator factory is required")
	}
	if opts.Speech == nil {
		opts.Speech = noSpeech{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultTimeLimit <= 0 {
		opts.DefaultTimeLimit = defaultTimeLimit
	}
	if opts.ReportTimeout <= 0 {
		opts.ReportTimeout = defaultReportTimeout
	}
	if opts.ID == "" {
		opts.ID = "local"
	}
	list := make([]personas.Persona, len(opts.Personas))
	copy(list, opts.Personas)

	return &Controller{
		id:             opts.ID,
		personas:       list,
		newGenerator:   opts.Generators,
		speech:         opts.Speech,
		notify:         opts.Notify,
		now:            opts.Now,
		defaultSeconds: int(opts.DefaultTimeLimit / time.Second),
		reportTimeout:  opts.ReportTimeout,
		phase:          PhaseIdle,
	}, nil
}

func (c *Controller) ID() string { return c.id }

type event interface{ name() string }

type (
	startedEvent struct {
		epoch   uint64
		gen     Generator
		topic   string
		points  TalkingPointSet
		seconds int
	}
	tickEvent          struct{}
	advanceEvent       struct{}
	interruptEvent     struct{ accept bool }
	humanEvent         struct{ text string }
	resetEvent         struct{}
	reportRequested    struct{}
	generationResolved struct {
		epoch uint64
		text  string
	}
	generationFailed struct {
		epoch uint64
		err   error
	}
	reportResolved struct {
		epoch  uint64
		report assessment.Report
	}
	reportFailed struct {
		epoch uint64
		err   error
	}
)

func (startedEvent) name() string       { return "started" }
func (tickEvent) name() string          { return "tick" }
func (advanceEvent) name() string       { return "advance" }
func (interruptEvent) name() string     { return "interrupt" }
func (humanEvent) name() string         { return "human_submit" }
func (resetEvent) name() string         { return "reset" }
func (reportRequested) name() string    { return "report_requested" }
func (generationResolved) name() string { return "generation_resolved" }
func (generationFailed) name() string   { return "generation_failed" }
func (reportResolved) name() string     { return "report_resolved" }
func (reportFailed) name() string       { return "report_failed" }

type generateEffect struct {
	epoch uint64
	gen   Generator
	req   UtteranceRequest
}

type reportEffect struct {
	epoch   uint64
	gen     Generator
	topic   string
	history []Utterance
	async   bool
}

type speakEffect struct {
	persona personas.Persona
	text    string
}

type outcome struct {
	notices  []Notice
	generate *generateEffect
	report   *reportEffect
	speak    *speakEffect
	listen   *bool
	release  bool
}

// Start validates the request, prepares talking points and opens the floor
// to the first agent. A session that is not idle is reset first.
func (c *Controller) Start(ctx context.Context, req StartRequest) error {
	topic := strings.TrimSpace(req.Topic)
	apiKey := strings.TrimSpace(req.APIKey)
	if topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	if apiKey == "" {
		return fmt.Errorf("%w: api key is required", ErrInvalidInput)
	}
	seconds := int(req.TimeLimit / time.Second)
	if seconds <= 0 {
		seconds = c.defaultSeconds
	}

	c.mu.Lock()
	if c.starting {
		c.mu.Unlock()
		return ErrBusy
	}
	var resetOut outcome
	if c.phase != PhaseIdle {
		resetOut = c.resetLocked()
	}
	c.starting = true
	c.lastError = ""
	c.humanName = strings.TrimSpace(req.CandidateName)
	epoch := c.epoch
	gen := c.newGenerator(apiKey)
	c.mu.Unlock()

	c.publish(resetOut.notices)
	if resetOut.release {
		c.speech.Release(c.id)
	}
	if err := c.speech.Acquire(c.id); err != nil {
		log.Printf("discussion: session %s speech acquire failed: %v", c.id, err)
	}

	points, err := gen.TalkingPoints(ctx, topic)
	if err != nil {
		c.mu.Lock()
		if c.epoch == epoch {
			c.starting = false
			c.lastError = err.Error()
		}
		c.mu.Unlock()
		return fmt.Errorf("%w: talking points: %w", ErrProvider, err)
	}

	return c.dispatch(ctx, startedEvent{
		epoch:   epoch,
		gen:     gen,
		topic:   topic,
		points:  points,
		seconds: seconds,
	})
}

// Advance runs the current agent turn. It is the retry path after a failed
// generation and returns ErrBusy while one is already in flight.
func (c *Controller) Advance(ctx context.Context) error {
	return c.dispatch(ctx, advanceEvent{})
}

// AnswerInterrupt resolves the "add your thoughts?" prompt.
func (c *Controller) AnswerInterrupt(ctx context.Context, accept bool) error {
	return c.dispatch(ctx, interruptEvent{accept: accept})
}

// SubmitHuman appends the participant's text and passes the floor on.
func (c *Controller) SubmitHuman(ctx context.Context, text string) error {
	return c.dispatch(ctx, humanEvent{text: text})
}

// Tick consumes one second of the countdown. When it reaches zero the session
// ends and, if the human contributed, the report is generated in the background.
func (c *Controller) Tick(ctx context.Context) {
	if err := c.dispatch(ctx, tickEvent{}); err != nil {
		log.Printf("discussion: session %s tick: %v", c.id, err)
	}
}

// GenerateReport produces the report for an ended session. It never calls the
// provider when the human made no contribution.
func (c *Controller) GenerateReport(ctx context.Context) (assessment.Report, error) {
	if err := c.dispatch(ctx, reportRequested{}); err != nil {
		return assessment.Report{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.report == nil {
		return assessment.Report{}, ErrSuperseded
	}
	return *c.report, nil
}

// Reset discards the session and returns to idle.
func (c *Controller) Reset() {
	_ = c.dispatch(context.Background(), resetEvent{})
}

// Snapshot returns a consistent copy of the state, transcript and report.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		SessionID:  c.id,
		State:      c.stateLocked(),
		Transcript: c.transcript.Entries(),
	}
	if c.report != nil {
		r := *c.report
		snap.Report = &r
	}
	return snap
}

// Phase is a cheap accessor used by the clock and janitor.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) dispatch(ctx context.Context, ev event) error {
	c.mu.Lock()
	out, err := c.apply(ev)
	c.mu.Unlock()

	c.publish(out.notices)
	if err != nil {
		return err
	}
	return c.perform(ctx, out)
}

// apply is the transition function. Callers hold mu.
func (c *Controller) apply(ev event) (outcome, error) {
	var out outcome
	switch e := ev.(type) {
	case startedEvent:
		if e.epoch != c.epoch || !c.starting {
			return out, ErrSuperseded
		}
		c.starting = false
		c.phase = PhaseRunning
		c.topic = e.topic
		c.gen = e.gen
		c.points = e.points
		c.cursors = make(PointCursors, len(c.personas))
		for _, p := range c.personas {
			c.cursors[p.ID] = 0
		}
		c.transcript.Reset()
		c.contributions = 0
		c.pending = false
		c.reportPending = false
		c.noContributions = false
		c.report = nil
		c.lastError = ""
		c.countdown = NewCountdown(e.seconds)
		c.scheduler.Start()

		seed := c.transcript.Append(SystemParticipant(), "Let's discuss: "+e.topic, c.now())
		out.notices = append(out.notices, c.noticeLocked(NoticeStarted), c.utteranceNoticeLocked(seed))
		c.beginAgentTurnLocked(&out)
		out.listen = boolPtr(false)
		out.notices = append(out.notices, c.noticeLocked(NoticeTurnChanged))
		return out, nil

	case advanceEvent:
		if c.phase != PhaseRunning {
			return out, ErrNotRunning
		}
		if c.pending {
			return out, ErrBusy
		}
		if c.scheduler.State() != TurnAgent {
			return out, fmt.Errorf("%w: advance in %s", ErrInvalidTransition, c.scheduler.State())
		}
		c.lastError = ""
		c.beginAgentTurnLocked(&out)
		return out, nil

	case interruptEvent:
		if c.phase != PhaseRunning {
			return out, ErrNotRunning
		}
		if e.accept {
			if err := c.scheduler.Accept(); err != nil {
				return out, err
			}
		} else {
			if err := c.scheduler.Decline(); err != nil {
				return out, err
			}
			c.beginAgentTurnLocked(&out)
		}
		out.listen = boolPtr(c.scheduler.AwaitingHuman())
		out.notices = append(out.notices, c.noticeLocked(NoticeTurnChanged))
		return out, nil

	case humanEvent:
		if c.phase != PhaseRunning {
			return out, ErrNotRunning
		}
		text := strings.TrimSpace(e.text)
		if text == "" {
			return out, ErrEmptyMessage
		}
		if !c.scheduler.AwaitingHuman() {
			return out, fmt.Errorf("%w: human_submit in %s", ErrInvalidTransition, c.scheduler.State())
		}
		u := c.transcript.Append(HumanParticipant(c.humanName), text, c.now())
		c.contributions++
		if err := c.scheduler.HumanSubmitted(); err != nil {
			return out, err
		}
		c.beginAgentTurnLocked(&out)
		out.listen = boolPtr(c.scheduler.AwaitingHuman())
		out.notices = append(out.notices, c.utteranceNoticeLocked(u), c.noticeLocked(NoticeTurnChanged))
		return out, nil

	case tickEvent:
		if c.phase != PhaseRunning {
			return out, nil
		}
		_, expired := c.countdown.Tick()
		out.notices = append(out.notices, c.noticeLocked(NoticeTick))
		if expired {
			c.endLocked(&out)
		}
		return out, nil

	case generationResolved:
		if e.epoch != c.epoch || c.phase != PhaseRunning || !c.pending {
			return out, ErrSuperseded
		}
		c.pending = false
		c.lastError = ""
		seat, ok := c.scheduler.AgentSeat()
		if !ok {
			return out, fmt.Errorf("%w: utterance without agent seat", ErrInvalidTransition)
		}
		p := c.personas[seat]
		u := c.transcript.Append(AgentParticipant(p), e.text, c.now())
		c.cursors.Advance(p.ID)
		if err := c.scheduler.AgentSpoke(); err != nil {
			return out, err
		}
		out.speak = &speakEffect{persona: p, text: e.text}
		out.listen = boolPtr(false)
		out.notices = append(out.notices, c.utteranceNoticeLocked(u), c.noticeLocked(NoticeTurnChanged))
		return out, nil

	case generationFailed:
		if e.epoch != c.epoch || c.phase != PhaseRunning || !c.pending {
			return out, ErrSuperseded
		}
		c.pending = false
		c.lastError = e.err.Error()
		out.notices = append(out.notices, c.errorNoticeLocked(e.err))
		return out, nil

	case reportRequested:
		switch c.phase {
		case PhaseEnded:
		case PhaseReported:
			return out, ErrAlreadyReported
		default:
			return out, ErrNotEnded
		}
		if c.contributions == 0 {
			c.noContributions = true
			return out, ErrNoContributions
		}
		if c.reportPending {
			return out, ErrBusy
		}
		c.reportPending = true
		c.lastError = ""
		out.report = c.reportEffectLocked(false)
		return out, nil

	case reportResolved:
		if e.epoch != c.epoch || c.phase != PhaseEnded {
			return out, ErrSuperseded
		}
		r := e.report
		c.report = &r
		c.reportPending = false
		c.lastError = ""
		c.phase = PhaseReported
		n := c.noticeLocked(NoticeReport)
		n.Report = &r
		out.notices = append(out.notices, n)
		return out, nil

	case reportFailed:
		if e.epoch != c.epoch || c.phase != PhaseEnded {
			return out, ErrSuperseded
		}
		c.reportPending = false
		c.lastError = e.err.Error()
		out.notices = append(out.notices, c.errorNoticeLocked(e.err))
		return out, nil

	case resetEvent:
		return c.resetLocked(), nil
	}
	return out, fmt.Errorf("discussion: unhandled event %s", ev.name())
}

func (c *Controller) beginAgentTurnLocked(out *outcome) {
	if c.pending || c.scheduler.State() != TurnAgent {
		return
	}
	seat, _ := c.scheduler.AgentSeat()
	p := c.personas[seat]
	idx, point := c.cursors.Peek(c.points, p.ID)
	c.pending = true
	out.generate = &generateEffect{
		epoch: c.epoch,
		gen:   c.gen,
		req: UtteranceRequest{
			Persona:    p,
			Topic:      c.topic,
			Point:      point,
			PointIndex: idx,
			History:    c.transcript.Entries(),
		},
	}
}

// endLocked forces the Ended phase. Bumping the epoch abandons any in-flight
// generation along with the interrupt prompt or pending text entry.
func (c *Controller) endLocked(out *outcome) {
	c.phase = PhaseEnded
	c.epoch++
	c.pending = false
	c.scheduler.Stop()
	out.listen = boolPtr(false)
	out.notices = append(out.notices, c.noticeLocked(NoticeEnded))

	if c.contributions == 0 {
		c.noContributions = true
		out.notices = append(out.notices, c.noticeLocked(NoticeNoContributions))
		return
	}
	c.reportPending = true
	out.report = c.reportEffectLocked(true)
}

func (c *Controller) reportEffectLocked(async bool) *reportEffect {
	return &reportEffect{
		epoch:   c.epoch,
		gen:     c.gen,
		topic:   c.topic,
		history: c.transcript.Entries(),
		async:   async,
	}
}

func (c *Controller) resetLocked() outcome {
	c.epoch++
	c.phase = PhaseIdle
	c.topic = ""
	c.gen = nil
	c.scheduler = Scheduler{}
	c.countdown = Countdown{}
	c.points = nil
	c.cursors = nil
	c.transcript.Reset()
	c.contributions = 0
	c.pending = false
	c.starting = false
	c.reportPending = false
	c.noContributions = false
	c.lastError = ""
	c.report = nil
	return outcome{
		notices: []Notice{c.noticeLocked(NoticeReset)},
		release: true,
	}
}

func (c *Controller) perform(ctx context.Context, out outcome) error {
	if out.release {
		c.speech.Release(c.id)
	}
	if out.speak != nil {
		if err := c.speech.Speak(c.id, out.speak.persona, out.speak.text); err != nil {
			log.Printf("discussion: session %s speech synthesis failed: %v", c.id, err)
		}
	}
	if out.listen != nil {
		if err := c.speech.SetListening(c.id, *out.listen); err != nil {
			log.Printf("discussion: session %s speech recognition toggle failed: %v", c.id, err)
		}
	}
	if out.generate != nil {
		return c.runGeneration(ctx, *out.generate)
	}
	if out.report != nil {
		eff := *out.report
		if eff.async {
			go func() {
				reportCtx, cancel := context.WithTimeout(context.Background(), c.reportTimeout)
				defer cancel()
				if err := c.runReport(reportCtx, eff); err != nil {
					log.Printf("discussion: session %s report: %v", c.id, err)
				}
			}()
			return nil
		}
		return c.runReport(ctx, eff)
	}
	return nil
}

func (c *Controller) runGeneration(ctx context.Context, eff generateEffect) error {
	text, err := eff.gen.Utterance(ctx, eff.req)
	if err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			err = errors.New("empty utterance")
		}
	}
	if err != nil {
		derr := c.dispatch(ctx, generationFailed{epoch: eff.epoch, err: err})
		if errors.Is(derr, ErrSuperseded) {
			return nil
		}
		if derr != nil {
			return derr
		}
		return fmt.Errorf("%w: %s turn: %w", ErrProvider, eff.req.Persona.ID, err)
	}

	derr := c.dispatch(ctx, generationResolved{epoch: eff.epoch, text: text})
	if errors.Is(derr, ErrSuperseded) {
		log.Printf("discussion: session %s discarded late %s utterance", c.id, eff.req.Persona.ID)
		return nil
	}
	return derr
}

func (c *Controller) runReport(ctx context.Context, eff reportEffect) error {
	r, err := eff.gen.Report(ctx, eff.topic, eff.history)
	if err != nil {
		derr := c.dispatch(ctx, reportFailed{epoch: eff.epoch, err: err})
		if errors.Is(derr, ErrSuperseded) {
			return ErrSuperseded
		}
		if derr != nil {
			return derr
		}
		return fmt.Errorf("%w: %w", ErrReportFailed, err)
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = c.now().UTC()
	}
	return c.dispatch(ctx, reportResolved{epoch: eff.epoch, report: r.Normalize()})
}

func (c *Controller) publish(notices []Notice) {
	if c.notify == nil {
		return
	}
	for _, n := range notices {
		c.notify(n)
	}
}

func (c *Controller) stateLocked() State {
	st := State{
		Phase:              c.phase,
		Topic:              c.topic,
		Turn:               c.scheduler.State(),
		TurnIndex:          c.scheduler.Index(),
		RemainingSeconds:   c.countdown.Remaining(),
		HumanContributions: c.contributions,
		PointCursors:       c.cursors.clone(),
		PendingGeneration:  c.pending,
		Starting:           c.starting,
		ReportPending:      c.reportPending,
		NoContributions:    c.noContributions,
		LastError:          c.lastError,
		Epoch:              c.epoch,
	}
	if seat, ok := c.scheduler.AgentSeat(); ok {
		p := AgentParticipant(c.personas[seat])
		st.ActiveSpeaker = &p
	} else if c.scheduler.AwaitingHuman() {
		p := HumanParticipant(c.humanName)
		st.ActiveSpeaker = &p
	}
	return st
}

func (c *Controller) noticeLocked(t NoticeType) Notice {
	return Notice{Type: t, SessionID: c.id, State: c.stateLocked()}
}

func (c *Controller) utteranceNoticeLocked(u Utterance) Notice {
	n := c.noticeLocked(NoticeUtterance)
	n.Utterance = &u
	return n
}

func (c *Controller) errorNoticeLocked(err error) Notice {
	n := c.noticeLocked(NoticeError)
	n.Error = err.Error()
	return n
}

func boolPtr(v bool) *bool { return &v }
