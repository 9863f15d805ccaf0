package discussion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/roundtable/internal/assessment"
	"github.com/ent0n29/roundtable/internal/personas"
)

type fakeGenerator struct {
	mu          sync.Mutex
	pointsErr   error
	utterErr    error
	reportErr   error
	requests    []UtteranceRequest
	pointCalls  int
	reportCalls int

	// When gate is non-nil Utterance signals entered and waits for gate.
	gate    chan struct{}
	entered chan struct{}
}

func (g *fakeGenerator) TalkingPoints(_ context.Context, topic string) (TalkingPointSet, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pointCalls++
	if g.pointsErr != nil {
		return nil, g.pointsErr
	}
	set := TalkingPointSet{}
	for _, p := range personas.Defaults() {
		points := make([]string, PointsPerAgent)
		for i := range points {
			points[i] = fmt.Sprintf("%s point %d on %s", p.ID, i, topic)
		}
		set[p.ID] = points
	}
	return set, nil
}

func (g *fakeGenerator) Utterance(_ context.Context, req UtteranceRequest) (string, error) {
	g.mu.Lock()
	gate, entered := g.gate, g.entered
	g.requests = append(g.requests, req)
	n := len(g.requests)
	err := g.utterErr
	g.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s turn %d", req.Persona.ID, n), nil
}

func (g *fakeGenerator) Report(_ context.Context, _ string, _ []Utterance) (assessment.Report, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reportCalls++
	if g.reportErr != nil {
		return assessment.Report{}, g.reportErr
	}
	return assessment.Report{
		Communication: assessment.Dimension{Score: 7},
		Empathy:       assessment.Dimension{Score: 8},
		Collaboration: assessment.Dimension{Score: 6},
		Adaptivity:    assessment.Dimension{Score: 9},
	}, nil
}

func (g *fakeGenerator) set(fn func(g *fakeGenerator)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

func (g *fakeGenerator) counts() (points, reports int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pointCalls, g.reportCalls
}

func (g *fakeGenerator) requestsFor(id personas.ID) []UtteranceRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []UtteranceRequest
	for _, r := range g.requests {
		if r.Persona.ID == id {
			out = append(out, r)
		}
	}
	return out
}

type recordingSpeech struct {
	mu        sync.Mutex
	acquired  []string
	released  []string
	spoken    []string
	listening []bool
	speakErr  error
}

func (s *recordingSpeech) Acquire(owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquired = append(s.acquired, owner)
	return nil
}

func (s *recordingSpeech) Release(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, owner)
}

func (s *recordingSpeech) Speak(_ string, p personas.Persona, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, string(p.ID)+":"+text)
	return s.speakErr
}

func (s *recordingSpeech) SetListening(_ string, listening bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listening = append(s.listening, listening)
	return nil
}

type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
}

func (l *noticeLog) add(n Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, n)
}

func (l *noticeLog) types() []NoticeType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]NoticeType, 0, len(l.notices))
	for _, n := range l.notices {
		out = append(out, n.Type)
	}
	return out
}

func newTestController(t *testing.T, gen *fakeGenerator, speech Speech, log *noticeLog) *Controller {
	t.Helper()
	opts := Options{
		ID:         "s-1",
		Personas:   personas.Defaults(),
		Generators: func(string) Generator { return gen },
		Speech:     speech,
	}
	if log != nil {
		opts.Notify = log.add
	}
	c, err := NewController(opts)
	require.NoError(t, err)
	return c
}

func startDiscussion(t *testing.T, c *Controller, limit time.Duration) {
	t.Helper()
	require.NoError(t, c.Start(context.Background(), StartRequest{
		Topic:         "remote work",
		APIKey:        "key-123",
		CandidateName: "Dana",
		TimeLimit:     limit,
	}))
}

// runCycle declines the three agent interrupts and submits one human message,
// leaving Agent0 at the interrupt prompt again.
func runCycle(t *testing.T, c *Controller, text string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.AnswerInterrupt(ctx, false))
	require.NoError(t, c.AnswerInterrupt(ctx, false))
	require.NoError(t, c.AnswerInterrupt(ctx, false))
	require.NoError(t, c.SubmitHuman(ctx, text))
}

func TestNewControllerRequiresThreePersonas(t *testing.T) {
	_, err := NewController(Options{
		Personas:   personas.Defaults()[:2],
		Generators: func(string) Generator { return &fakeGenerator{} },
	})
	require.Error(t, err)

	_, err = NewController(Options{Personas: personas.Defaults()})
	require.Error(t, err)
}

func TestStartValidatesTopicAndKey(t *testing.T) {
	gen := &fakeGenerator{}
	c := newTestController(t, gen, nil, nil)

	err := c.Start(context.Background(), StartRequest{Topic: "  ", APIKey: "k"})
	require.ErrorIs(t, err, ErrInvalidInput)
	err = c.Start(context.Background(), StartRequest{Topic: "t", APIKey: ""})
	require.ErrorIs(t, err, ErrInvalidInput)

	points, _ := gen.counts()
	assert.Zero(t, points)
	assert.Equal(t, PhaseIdle, c.Phase())
}

func TestStartSeedsTranscriptAndRunsFirstAgent(t *testing.T) {
	gen := &fakeGenerator{}
	speech := &recordingSpeech{}
	log := &noticeLog{}
	c := newTestController(t, gen, speech, log)

	startDiscussion(t, c, time.Minute)

	snap := c.Snapshot()
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, RoleSystem, snap.Transcript[0].Speaker.Role)
	assert.Equal(t, "Let's discuss: remote work", snap.Transcript[0].Text)
	assert.Equal(t, personas.Analytical, snap.Transcript[1].Speaker.PersonaID)

	st := snap.State
	assert.Equal(t, PhaseRunning, st.Phase)
	assert.Equal(t, TurnInterruptPrompt, st.Turn)
	assert.Equal(t, 60, st.RemainingSeconds)
	assert.Equal(t, 1, st.PointCursors[personas.Analytical])
	assert.Equal(t, 0, st.PointCursors[personas.Creative])
	require.NotNil(t, st.ActiveSpeaker)
	assert.Equal(t, personas.Analytical, st.ActiveSpeaker.PersonaID)
	assert.False(t, st.PendingGeneration)

	assert.Equal(t, []string{"s-1"}, speech.acquired)
	assert.Len(t, speech.spoken, 1)
	assert.Contains(t, log.types(), NoticeStarted)
	assert.Contains(t, log.types(), NoticeUtterance)
}

func TestStartProviderFailureLeavesSessionIdle(t *testing.T) {
	gen := &fakeGenerator{pointsErr: errors.New("401 unauthorized")}
	c := newTestController(t, gen, nil, nil)

	err := c.Start(context.Background(), StartRequest{Topic: "t", APIKey: "bad"})
	require.ErrorIs(t, err, ErrProvider)

	st := c.Snapshot().State
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.False(t, st.Starting)
	assert.Contains(t, st.LastError, "401")
}

func TestRotationFollowsFixedOrderWhenInterruptsDeclined(t *testing.T) {
	gen := &fakeGenerator{}
	c := newTestController(t, gen, nil, nil)
	ctx := context.Background()
	startDiscussion(t, c, time.Minute)

	var speakers []string
	record := func() {
		sp := c.Snapshot().State.ActiveSpeaker
		require.NotNil(t, sp)
		if sp.Role == RoleHuman {
			speakers = append(speakers, "human")
			return
		}
		speakers = append(speakers, string(sp.PersonaID))
	}

	record()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.AnswerInterrupt(ctx, false))
		record()
	}
	assert.Equal(t, []string{"analytical", "creative", "pragmatic", "human"}, speakers)
	assert.Equal(t, TurnHuman, c.Snapshot().State.Turn)

	require.NoError(t, c.SubmitHuman(ctx, "I think so"))
	st := c.Snapshot().State
	assert.Equal(t, 0, st.TurnIndex)
	assert.Equal(t, TurnInterruptPrompt, st.Turn)
	assert.Equal(t, personas.Analytical, st.ActiveSpeaker.PersonaID)
}

func TestPointCursorReusesFirstPointOnEleventhTurn(t *testing.T) {
	gen := &fakeGenerator{}
	c := newTestController(t, gen, nil, nil)
	startDiscussion(t, c, time.Hour)

	for i := 0; i < 10; i++ {
		runCycle(t, c, fmt.Sprintf("contribution %d", i))
	}

	reqs := gen.requestsFor(personas.Analytical)
	require.Len(t, reqs, 11)
	for i, r := range reqs[:10] {
		assert.Equal(t, i, r.PointIndex)
	}
	assert.Equal(t, 0, reqs[10].PointIndex)
	assert.Equal(t, reqs[0].Point, reqs[10].Point)
	assert.Equal(t, 10, c.Snapshot().State.HumanContributions)
}

func TestTranscriptIsAppendOnly(t *testing.T) {
	gen := &fakeGenerator{}
	c := newTestController(t, gen, nil, nil)
	startDiscussion(t, c, time.Hour)

	before := c.Snapshot().Transcript
	runCycle(t, c, "first thought")
	runCycle(t, c, "second thought")
	after := c.Snapshot().Transcript

	// 1 opening agent turn, then per cycle 2 agents + 1 human + 1 agent.
	turns := 1 + 2*4
	require.Len(t, after, turns+1)
	for i := range before {
		assert.Equal(t, before[i], after[i])
	}
}

func TestAcceptInterruptLetsHumanInterject(t *testing.T) {
	gen := &fakeGenerator{}
	speech := &recordingSpeech{}
	c := newTestController(t, gen, speech, nil)
	ctx := context.Background()
	startDiscussion(t, c, time.Minute)

	require.NoError(t, c.AnswerInterrupt(ctx, true))
	st := c.Snapshot().State
	assert.Equal(t, TurnHumanInterjecting, st.Turn)
	assert.Equal(t, 0, st.TurnIndex)
	assert.Equal(t, RoleHuman, st.ActiveSpeaker.Role)
	assert.Equal(t, "Dana", st.ActiveSpeaker.Name)
	assert.True(t, speech.listening[len(speech.listening)-1])

	require.NoError(t, c.SubmitHuman(ctx, "Quick point"))
	st = c.Snapshot().State
	assert.Equal(t, 1, st.TurnIndex)
	assert.Equal(t, personas.Creative, st.ActiveSpeaker.PersonaID)
	assert.Equal(t, 1, st.HumanContributions)
}

func TestEmptyHumanSubmissionIsRejected(t *testing.T) {
	gen := &fakeGenerator{}
	c := newTestController(t, gen, nil, nil)
	ctx := context.Background()
	startDiscussion(t, c, time.Minute)
	require.NoError(t, c.AnswerInterrupt(ctx, true))

	before := c.Snapshot()
	err := c.SubmitHuman(ctx, "   \n\t")
	require.ErrorIs(t, err, ErrEmptyMessage)
	require.ErrorIs(t, err, ErrInvalidInput)

	after := c.Snapshot()
	assert.Equal(t, before.State, after.State)
	assert.Len(t, after.Transcript, len(before.Transcript))
}

func TestSubmitOutsideHumanTurnIsInvalid(t *testing.T) {
	gen := &fakeGenerator{}
	c := newTestController(t, gen, nil, nil)
	startDiscussion(t, c, time.Minute)

	err := c.SubmitHuman(context.Background(), "hello")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFailedUtteranceCanBeRetriedWithAdvance(t *testing.T) {
	gen := &fakeGenerator{utterErr: errors.New("503 overloaded")}
	log := &noticeLog{}
	c := newTestController(t, gen, nil, log)
	ctx := context.Background()

	err := c.Start(ctx, StartRequest{Topic: "t", APIKey: "k", TimeLimit: time.Minute})
	require.ErrorIs(t, err, ErrProvider)

	st := c.Snapshot().State
	assert.Equal(t, PhaseRunning, st.Phase)
	assert.Equal(t, TurnAgent, st.Turn)
	assert.False(t, st.PendingGeneration)
	assert.Contains(t, st.LastError, "503")
	assert.Len(t, c.Snapshot().Transcript, 1)
	assert.Contains(t, log.types(), NoticeError)

	gen.set(func(g *fakeGenerator) { g.utterErr = nil })
	require.NoError(t, c.Advance(ctx))
	st = c.Snapshot().State
	assert.Equal(t, TurnInterruptPrompt, st.Turn)
	assert.Empty(t, st.LastError)
	assert.Len(t, c.Snapshot().Transcript, 2)

	// Nothing left to generate while the interrupt prompt is open.
	require.ErrorIs(t, c.Advance(ctx), ErrInvalidTransition)
}

func TestAdvanceIsGuardedWhileGenerationInFlight(t *testing.T) {
	gen := &fakeGenerator{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := newTestController(t, gen, nil, nil)

	done := make(chan error, 1)
	go func() {
		done <- c.Start(context.Background(), StartRequest{Topic: "t", APIKey: "k", TimeLimit: time.Minute})
	}()
	<-gen.entered

	require.True(t, c.Snapshot().State.PendingGeneration)
	require.ErrorIs(t, c.Advance(context.Background()), ErrBusy)

	close(gen.gate)
	require.NoError(t, <-done)
	assert.Len(t, gen.requestsFor(personas.Analytical), 1)
}

func TestSpeechFailureDoesNotBlockTurn(t *testing.T) {
	gen := &fakeGenerator{}
	speech := &recordingSpeech{speakErr: errors.New("no audio device")}
	c := newTestController(t, gen, speech, nil)

	startDiscussion(t, c, time.Minute)
	assert.Equal(t, TurnInterruptPrompt, c.Snapshot().State.Turn)
}

func TestTimerExpiryEndsSessionAndIgnoresLaterInput(t *testing.T) {
	gen := &fakeGenerator{}
	log := &noticeLog{}
	c := newTestController(t, gen, nil, log)
	ctx := context.Background()
	startDiscussion(t, c, time.Second)
	require.NoError(t, c.AnswerInterrupt(ctx, true))

	c.Tick(ctx)
	snap := c.Snapshot()
	assert.Equal(t, PhaseEnded, snap.State.Phase)
	assert.Equal(t, 0, snap.State.RemainingSeconds)
	assert.Equal(t, TurnNone, snap.State.Turn)

	require.ErrorIs(t, c.SubmitHuman(ctx, "too late"), ErrNotRunning)
	require.ErrorIs(t, c.Advance(ctx), ErrNotRunning)
	require.ErrorIs(t, c.AnswerInterrupt(ctx, false), ErrNotRunning)
	assert.Equal(t, snap.Transcript, c.Snapshot().Transcript)

	c.Tick(ctx)
	assert.Equal(t, PhaseEnded, c.Phase())
	assert.Contains(t, log.types(), NoticeEnded)
}

func TestNoContributionsSkipsReport(t *testing.T) {
	gen := &fakeGenerator{}
	log := &noticeLog{}
	c := newTestController(t, gen, nil, log)
	startDiscussion(t, c, time.Second)

	c.Tick(context.Background())
	st := c.Snapshot().State
	assert.Equal(t, PhaseEnded, st.Phase)
	assert.True(t, st.NoContributions)
	assert.Contains(t, log.types(), NoticeNoContributions)

	_, err := c.GenerateReport(context.Background())
	require.ErrorIs(t, err, ErrNoContributions)

	_, reports := gen.counts()
	assert.Zero(t, reports)
}

func TestReportGeneratedAfterTimerWhenHumanContributed(t *testing.T) {
	gen := &fakeGenerator{}
	log := &noticeLog{}
	c := newTestController(t, gen, nil, log)
	ctx := context.Background()
	startDiscussion(t, c, time.Second)
	require.NoError(t, c.AnswerInterrupt(ctx, true))
	require.NoError(t, c.SubmitHuman(ctx, "Let's pilot it with one team"))

	c.Tick(ctx)
	require.Eventually(t, func() bool { return c.Phase() == PhaseReported }, time.Second, 5*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.Report)
	assert.InDelta(t, 7.5, snap.Report.Overall(), 1e-9)
	assert.False(t, snap.Report.GeneratedAt.IsZero())
	assert.Contains(t, log.types(), NoticeReport)

	_, err := c.GenerateReport(ctx)
	require.ErrorIs(t, err, ErrAlreadyReported)
	_, reports := gen.counts()
	assert.Equal(t, 1, reports)
}

func TestReportFailureCanBeRetried(t *testing.T) {
	gen := &fakeGenerator{reportErr: errors.New("unparseable")}
	c := newTestController(t, gen, nil, nil)
	ctx := context.Background()
	startDiscussion(t, c, time.Second)
	require.NoError(t, c.AnswerInterrupt(ctx, true))
	require.NoError(t, c.SubmitHuman(ctx, "one idea"))

	c.Tick(ctx)
	require.Eventually(t, func() bool {
		st := c.Snapshot().State
		return !st.ReportPending && st.LastError != ""
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, PhaseEnded, c.Phase())

	_, err := c.GenerateReport(ctx)
	require.ErrorIs(t, err, ErrReportFailed)

	gen.set(func(g *fakeGenerator) { g.reportErr = nil })
	report, err := c.GenerateReport(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 7.5, report.Overall(), 1e-9)
	assert.Equal(t, PhaseReported, c.Phase())
}

func TestGenerateReportBeforeEndIsRejected(t *testing.T) {
	gen := &fakeGenerator{}
	c := newTestController(t, gen, nil, nil)
	_, err := c.GenerateReport(context.Background())
	require.ErrorIs(t, err, ErrNotEnded)

	startDiscussion(t, c, time.Minute)
	_, err = c.GenerateReport(context.Background())
	require.ErrorIs(t, err, ErrNotEnded)
}

func TestLateUtteranceDiscardedAfterReset(t *testing.T) {
	gen := &fakeGenerator{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	speech := &recordingSpeech{}
	c := newTestController(t, gen, speech, nil)

	done := make(chan error, 1)
	go func() {
		done <- c.Start(context.Background(), StartRequest{Topic: "t", APIKey: "k", TimeLimit: time.Minute})
	}()
	<-gen.entered

	c.Reset()
	close(gen.gate)
	require.NoError(t, <-done)

	snap := c.Snapshot()
	assert.Equal(t, PhaseIdle, snap.State.Phase)
	assert.Empty(t, snap.Transcript)
	assert.Empty(t, speech.spoken)
	assert.Equal(t, []string{"s-1"}, speech.released)
}

func TestLateUtteranceDiscardedAfterTimerEnd(t *testing.T) {
	gen := &fakeGenerator{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	c := newTestController(t, gen, nil, nil)

	done := make(chan error, 1)
	go func() {
		done <- c.Start(context.Background(), StartRequest{Topic: "t", APIKey: "k", TimeLimit: time.Second})
	}()
	<-gen.entered

	c.Tick(context.Background())
	close(gen.gate)
	require.NoError(t, <-done)

	snap := c.Snapshot()
	assert.Equal(t, PhaseEnded, snap.State.Phase)
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, RoleSystem, snap.Transcript[0].Speaker.Role)
}

func TestResetClearsEverything(t *testing.T) {
	gen := &fakeGenerator{}
	log := &noticeLog{}
	c := newTestController(t, gen, nil, log)
	ctx := context.Background()
	startDiscussion(t, c, time.Minute)
	runCycle(t, c, "hello")

	c.Reset()
	snap := c.Snapshot()
	assert.Equal(t, PhaseIdle, snap.State.Phase)
	assert.Empty(t, snap.Transcript)
	assert.Zero(t, snap.State.HumanContributions)
	assert.Zero(t, snap.State.RemainingSeconds)
	assert.Empty(t, snap.State.PointCursors)
	assert.Nil(t, snap.State.ActiveSpeaker)
	assert.Contains(t, log.types(), NoticeReset)

	// A fresh start after reset behaves like the first one.
	startDiscussion(t, c, time.Minute)
	assert.Len(t, c.Snapshot().Transcript, 2)
	require.NoError(t, c.AnswerInterrupt(ctx, false))
}

func TestStartWhileRunningResetsFirst(t *testing.T) {
	gen := &fakeGenerator{}
	speech := &recordingSpeech{}
	c := newTestController(t, gen, speech, nil)
	startDiscussion(t, c, time.Minute)
	runCycle(t, c, "hello")

	startDiscussion(t, c, time.Minute)
	snap := c.Snapshot()
	assert.Len(t, snap.Transcript, 2)
	assert.Zero(t, snap.State.HumanContributions)
	assert.Equal(t, []string{"s-1"}, speech.released)
	assert.Equal(t, []string{"s-1", "s-1"}, speech.acquired)
}
