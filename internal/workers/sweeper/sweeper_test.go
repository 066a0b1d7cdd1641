package sweeper

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"freightbid/internal/adapters/memory"
	"freightbid/internal/domain"
	"freightbid/internal/ports"
	"freightbid/internal/services/bids"
	"freightbid/internal/services/reports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingSink struct {
	mu        sync.Mutex
	summaries []domain.Summary
	err       error
}

func (r *recordingSink) Deliver(_ context.Context, s domain.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, s)
	return r.err
}

type recordingEvents struct {
	mu     sync.Mutex
	events []string
	data   []any
	err    error
}

func (r *recordingEvents) Publish(_ context.Context, eventType string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
	r.data = append(r.data, data)
	return r.err
}

type fixture struct {
	ist    *time.Location
	clock  *fakeClock
	store  *memory.Store
	svc    *bids.Service
	sink   *recordingSink
	events *recordingEvents
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ist, err := time.LoadLocation("Asia/Kolkata")
	assert.NoError(t, err)
	clock := &fakeClock{now: time.Date(2026, 3, 10, 10, 0, 0, 0, ist).UTC()}
	store := memory.New()
	return &fixture{
		ist:    ist,
		clock:  clock,
		store:  store,
		svc:    bids.New(store, store, bids.Options{CutoffHour: 18, Location: ist, Clock: clock}),
		sink:   &recordingSink{},
		events: &recordingEvents{},
	}
}

func (f *fixture) sweeper() *Sweeper {
	return &Sweeper{
		Bids:      f.store,
		Offers:    f.store,
		Assembler: reports.NewAssembler(f.ist),
		Reports:   f.sink,
		Events:    f.events,
		Clock:     f.clock,
	}
}

func (f *fixture) at(h, m int) time.Time {
	return time.Date(2026, 3, 10, h, m, 0, 0, f.ist).UTC()
}

func (f *fixture) offer(t *testing.T, bidID, company string, price int64) domain.Offer {
	t.Helper()
	o, err := f.svc.SubmitOffer(context.Background(), bidID, bids.OfferInput{
		CompanyName:  company,
		PersonName:   "Contact",
		MobileNumber: "9800000000",
		QuotedPrice:  decimal.NewFromInt(price),
	})
	assert.NoError(t, err)
	return o
}

func TestSweep_ClosesOverdueBidAndReportsRanking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bid, err := f.svc.Create(ctx, bids.CreateInput{Origin: "Nagpur", Destination: "Pune"})
	assert.NoError(t, err)
	check.True(t, bid.ExpiresAt.Equal(f.at(18, 0)))

	f.clock.Set(f.at(11, 0))
	f.offer(t, bid.ID, "Gati", 50000)
	f.clock.Set(f.at(12, 0))
	first := f.offer(t, bid.ID, "Blue Dart", 45000)
	f.clock.Set(f.at(12, 2))
	f.offer(t, bid.ID, "VRL", 45000)

	f.clock.Set(f.at(18, 1))
	res, err := f.sweeper().Sweep(ctx)
	assert.NoError(t, err)

	check.Equal(t, 1, res.Examined)
	check.Equal(t, 1, res.Closed)
	check.Equal(t, 0, res.Conflicts)
	check.Equal(t, 0, len(res.Failures))
	assert.Equal(t, 1, len(res.Reports))
	check.Equal(t, 3, res.Reports[0].OfferCount)

	assert.Equal(t, 1, len(f.sink.summaries))
	s := f.sink.summaries[0]
	check.Equal(t, 3, s.OfferCount)
	assert.NotNil(t, s.Lowest)
	check.Equal(t, first.ID, s.Lowest.ID)
	check.Equal(t, "Blue Dart", s.Ranked[0].CompanyName)
	check.Equal(t, "VRL", s.Ranked[1].CompanyName)
	check.Equal(t, "Gati", s.Ranked[2].CompanyName)
	check.Equal(t, domain.StatusClosed, s.Bid.Status)
	check.Equal(t, []string{ports.EventBidClosed}, f.events.events)

	got, err := f.store.Get(ctx, bid.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.StatusClosed, got.Status)

	// a second run a few minutes later has nothing left to do
	f.clock.Set(f.at(18, 5))
	res, err = f.sweeper().Sweep(ctx)
	assert.NoError(t, err)
	check.Equal(t, 0, res.Examined)
	check.Equal(t, 0, res.Closed)
	check.Equal(t, 1, len(f.sink.summaries))
}

func TestSweep_LeavesUnexpiredBidsOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bid, err := f.svc.Create(ctx, bids.CreateInput{Origin: "Nagpur"})
	assert.NoError(t, err)

	f.clock.Set(f.at(18, 0))
	res, err := f.sweeper().Sweep(ctx)
	assert.NoError(t, err)
	check.Equal(t, 0, res.Examined)

	got, err := f.store.Get(ctx, bid.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.StatusOpen, got.Status)
}

func TestSweep_ZeroOffersUsesMarker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Create(ctx, bids.CreateInput{Origin: "Nagpur"})
	assert.NoError(t, err)

	f.clock.Set(f.at(19, 0))
	res, err := f.sweeper().Sweep(ctx)
	assert.NoError(t, err)
	check.Equal(t, 1, res.Closed)
	check.Equal(t, 0, len(res.Failures))

	assert.Equal(t, 1, len(f.sink.summaries))
	s := f.sink.summaries[0]
	check.True(t, s.NoOffers)
	check.True(t, s.Lowest == nil)
	check.Equal(t, domain.NoOffersLabel, s.LowestLabel)
	check.Equal(t, domain.NoOffersLabel, res.Reports[0].LowestLabel)
}

func TestSweep_LateOfferIsRanked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bid, err := f.svc.Create(ctx, bids.CreateInput{Origin: "Nagpur"})
	assert.NoError(t, err)

	f.clock.Set(f.at(18, 0).Add(30 * time.Second))
	late := f.offer(t, bid.ID, "Late Logistics", 1000)

	f.clock.Set(f.at(18, 1))
	_, err = f.sweeper().Sweep(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, len(f.sink.summaries))
	check.Equal(t, late.ID, f.sink.summaries[0].Lowest.ID)
}

func TestSweep_ConcurrentSweepsCloseEachBidOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	const nBids = 25
	for i := 0; i < nBids; i++ {
		bid, err := f.svc.Create(ctx, bids.CreateInput{Origin: fmt.Sprintf("origin-%d", i)})
		assert.NoError(t, err)
		f.offer(t, bid.ID, "Carrier", int64(1000+i))
	}
	f.clock.Set(f.at(18, 30))

	const sweeps = 8
	results := make([]Result, sweeps)
	var wg sync.WaitGroup
	for i := 0; i < sweeps; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sw := f.sweeper()
			sw.Concurrency = 4
			res, err := sw.Sweep(ctx)
			if err != nil {
				t.Errorf("sweep %d: %v", i, err)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	closed, conflicts := 0, 0
	for _, r := range results {
		closed += r.Closed
		conflicts += r.Conflicts
		check.Equal(t, r.Examined, r.Closed+r.Conflicts)
	}
	check.Equal(t, nBids, closed)

	seen := map[string]int{}
	for _, s := range f.sink.summaries {
		seen[s.BidID]++
	}
	check.Equal(t, nBids, len(seen))
	for id, n := range seen {
		if n != 1 {
			t.Errorf("bid %s reported %d times", id, n)
		}
	}

	st, err := f.store.Stats(ctx)
	assert.NoError(t, err)
	check.Equal(t, 0, st.Open)
	check.Equal(t, nBids, st.Closed)
}

// flakyOffers fails RankedFor for a single bid.
type flakyOffers struct {
	ports.OfferStore
	failFor string
}

func (f flakyOffers) RankedFor(ctx context.Context, bidID string) ([]domain.Offer, error) {
	if bidID == f.failFor {
		return nil, domain.Transient(errors.New("connection reset"))
	}
	return f.OfferStore.RankedFor(ctx, bidID)
}

func TestSweep_OneBidFailureDoesNotAbortOthers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bad, err := f.svc.Create(ctx, bids.CreateInput{Origin: "bad"})
	assert.NoError(t, err)
	_, err = f.svc.Create(ctx, bids.CreateInput{Origin: "good-1"})
	assert.NoError(t, err)
	_, err = f.svc.Create(ctx, bids.CreateInput{Origin: "good-2"})
	assert.NoError(t, err)

	f.clock.Set(f.at(18, 1))
	sw := f.sweeper()
	sw.Offers = flakyOffers{OfferStore: f.store, failFor: bad.ID}
	res, err := sw.Sweep(ctx)
	assert.NoError(t, err)

	check.Equal(t, 3, res.Examined)
	check.Equal(t, 2, res.Closed)
	assert.Equal(t, 1, len(res.Failures))
	check.Equal(t, bad.ID, res.Failures[0].BidID)
	check.Equal(t, "rank", res.Failures[0].Stage)
	check.Equal(t, 2, len(f.sink.summaries))
}

func TestSweep_DeliveryFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Create(ctx, bids.CreateInput{Origin: "Nagpur"})
	assert.NoError(t, err)
	f.sink.err = errors.New("webhook down")
	f.events.err = errors.New("webhook down")

	f.clock.Set(f.at(18, 1))
	res, err := f.sweeper().Sweep(ctx)
	assert.NoError(t, err)
	check.Equal(t, 1, res.Closed)
	check.Equal(t, 0, len(res.Failures))
}

// brokenBids fails the candidate query outright.
type brokenBids struct {
	ports.BidRepository
}

func (brokenBids) FindOverdueOpen(context.Context, time.Time) iter.Seq2[domain.Bid, error] {
	return func(yield func(domain.Bid, error) bool) {
		yield(domain.Bid{}, domain.Transient(errors.New("dial tcp: connection refused")))
	}
}

func TestSweep_StoreDownBeforeAnyBidIsAnError(t *testing.T) {
	f := newFixture(t)
	sw := f.sweeper()
	sw.Bids = brokenBids{BidRepository: f.store}

	_, err := sw.Sweep(context.Background())
	check.True(t, errors.Is(err, domain.ErrTransientStore))
}

// slowBids blocks the first transition until the sweep deadline passes.
type slowBids struct {
	ports.BidRepository
}

func (s slowBids) TransitionStatus(ctx context.Context, bidID string, from, to domain.Status) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func TestSweep_DeadlineDefersRemainingBids(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, bids.CreateInput{Origin: fmt.Sprintf("o-%d", i)})
		assert.NoError(t, err)
	}
	f.clock.Set(f.at(18, 1))

	sw := f.sweeper()
	sw.Bids = slowBids{BidRepository: f.store}
	sw.Deadline = 50 * time.Millisecond
	res, err := sw.Sweep(ctx)
	assert.NoError(t, err)

	check.Equal(t, 3, res.Examined)
	check.Equal(t, 0, res.Closed)
	check.Equal(t, 3, len(res.Deferred))
	check.Equal(t, 0, len(res.Failures))

	st, err := f.store.Stats(ctx)
	assert.NoError(t, err)
	check.Equal(t, 3, st.Open)

	// next run without the slow store picks them all up
	res, err = f.sweeper().Sweep(ctx)
	assert.NoError(t, err)
	check.Equal(t, 3, res.Closed)
}

// lateCloseBids applies the close and then returns after the sweep deadline.
type lateCloseBids struct {
	ports.BidRepository
	delay time.Duration
}

func (l lateCloseBids) TransitionStatus(ctx context.Context, bidID string, from, to domain.Status) (bool, error) {
	applied, err := l.BidRepository.TransitionStatus(ctx, bidID, from, to)
	time.Sleep(l.delay)
	return applied, err
}

// ctxOffers fails once its context is done, the way network-backed stores do.
type ctxOffers struct {
	ports.OfferStore
}

func (c ctxOffers) RankedFor(ctx context.Context, bidID string) ([]domain.Offer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.OfferStore.RankedFor(ctx, bidID)
}

func TestSweep_ClosedBidIsReportedEvenAfterDeadline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bid, err := f.svc.Create(ctx, bids.CreateInput{Origin: "Nagpur"})
	assert.NoError(t, err)
	f.offer(t, bid.ID, "Blue Dart", 45000)
	f.clock.Set(f.at(18, 1))

	sw := f.sweeper()
	sw.Bids = lateCloseBids{BidRepository: f.store, delay: 60 * time.Millisecond}
	sw.Offers = ctxOffers{OfferStore: f.store}
	sw.Deadline = 50 * time.Millisecond
	res, err := sw.Sweep(ctx)
	assert.NoError(t, err)

	check.Equal(t, 1, res.Closed)
	check.Equal(t, 0, len(res.Failures))
	assert.Equal(t, 1, len(f.sink.summaries))
	check.Equal(t, bid.ID, f.sink.summaries[0].BidID)
	check.Equal(t, 1, f.sink.summaries[0].OfferCount)
	check.Equal(t, []string{ports.EventBidClosed}, f.events.events)
}

// cancellingBids cancels the caller's context on every transition attempt.
type cancellingBids struct {
	ports.BidRepository
	cancel context.CancelFunc
}

func (c cancellingBids) TransitionStatus(ctx context.Context, bidID string, from, to domain.Status) (bool, error) {
	c.cancel()
	<-ctx.Done()
	return false, ctx.Err()
}

func TestSweep_CallerCancelDefersRemainingBids(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(context.Background(), bids.CreateInput{Origin: fmt.Sprintf("o-%d", i)})
		assert.NoError(t, err)
	}
	f.clock.Set(f.at(18, 1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sw := f.sweeper()
	sw.Bids = cancellingBids{BidRepository: f.store, cancel: cancel}
	res, err := sw.Sweep(ctx)
	assert.NoError(t, err)

	check.Equal(t, 3, res.Examined)
	check.Equal(t, 3, len(res.Deferred))
	check.Equal(t, 0, len(res.Failures))

	st, err := f.store.Stats(context.Background())
	assert.NoError(t, err)
	check.Equal(t, 3, st.Open)
}

// advancingBids moves the clock forward once the close has applied.
type advancingBids struct {
	ports.BidRepository
	clock *fakeClock
	to    time.Time
}

func (a advancingBids) TransitionStatus(ctx context.Context, bidID string, from, to domain.Status) (bool, error) {
	applied, err := a.BidRepository.TransitionStatus(ctx, bidID, from, to)
	a.clock.Set(a.to)
	return applied, err
}

func TestSweep_ClosedEventCarriesCloseTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Create(ctx, bids.CreateInput{Origin: "Nagpur"})
	assert.NoError(t, err)
	f.clock.Set(f.at(18, 1))

	sw := f.sweeper()
	sw.Bids = advancingBids{BidRepository: f.store, clock: f.clock, to: f.at(18, 3)}
	res, err := sw.Sweep(ctx)
	assert.NoError(t, err)
	check.True(t, res.AsOf.Equal(f.at(18, 1)))

	assert.Equal(t, 1, len(f.events.data))
	ev, ok := f.events.data[0].(ClosedEvent)
	assert.True(t, ok)
	check.True(t, ev.ClosedAt.Equal(f.at(18, 3)))
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, f.sweeper(), time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
