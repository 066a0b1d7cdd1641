package sweeper

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"freightbid/internal/domain"
	"freightbid/internal/ports"
	"freightbid/internal/services/reports"
)

const (
	// finishTimeout bounds ranking and delivery for a bid this sweep already closed.
	finishTimeout = 30 * time.Second
	// listGrace is how long the candidate cursor may outlive the sweep deadline.
	listGrace = time.Minute
)

// Failure is one bid the sweep could not close and report. The bid stays in
// whatever state the failing step left it in; an open bid is retried next run.
type Failure struct {
	BidID     string `json:"bid_id"`
	BidNumber string `json:"bid_number,omitempty"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

// Closed identifies a bid closed and reported by this run.
type Closed struct {
	BidID       string `json:"bid_id"`
	BidNumber   string `json:"bid_number"`
	OfferCount  int    `json:"offer_count"`
	LowestLabel string `json:"lowest"`
}

type Result struct {
	AsOf      time.Time `json:"as_of"`
	Examined  int       `json:"examined"`
	Closed    int       `json:"closed"`
	Conflicts int       `json:"conflicts"`
	Deferred  []string  `json:"deferred"`
	Failures  []Failure `json:"failures"`
	Reports   []Closed  `json:"reports"`
}

// Sweeper closes overdue open bids and hands their summaries to the report sink.
// Any number of sweeps may run at once: the conditional open->closed update picks
// exactly one closer per bid.
type Sweeper struct {
	Bids      ports.BidRepository
	Offers    ports.OfferStore
	Assembler reports.Assembler
	Reports   ports.ReportSink
	Events    ports.EventPublisher
	Clock     ports.Clock
	Logger    *slog.Logger
	// Deadline bounds one sweep; bids not reached in time are reported as deferred.
	Deadline time.Duration
	// Concurrency is the number of bids processed in parallel. Values below 1 mean 1.
	Concurrency int
}

func (s *Sweeper) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Sweeper) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

// Sweep runs one pass. It returns an error only when the candidate query fails
// before any bid was examined; every per-bid problem lands in Result.Failures.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	log := s.logger()
	res := Result{AsOf: s.now(), Deferred: []string{}, Failures: []Failure{}, Reports: []Closed{}}

	work := ctx
	if s.Deadline > 0 {
		var cancel context.CancelFunc
		work, cancel = context.WithTimeout(ctx, s.Deadline)
		defer cancel()
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(max(s.Concurrency, 1))

	// The candidate cursor is detached from ctx so that, once the deadline passes or
	// the caller goes away, the rest of the candidates can still be listed as deferred.
	listCtx, cancelList := context.WithTimeout(context.WithoutCancel(ctx), s.Deadline+listGrace)
	defer cancelList()
	for bid, err := range s.Bids.FindOverdueOpen(listCtx, res.AsOf) {
		if err != nil {
			if res.Examined == 0 {
				_ = g.Wait()
				return res, fmt.Errorf("find overdue bids: %w", err)
			}
			mu.Lock()
			res.Failures = append(res.Failures, Failure{Stage: "query", Error: err.Error()})
			mu.Unlock()
			break
		}
		mu.Lock()
		res.Examined++
		mu.Unlock()
		if work.Err() != nil {
			mu.Lock()
			res.Deferred = append(res.Deferred, bid.ID)
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			s.process(work, bid, &res, &mu)
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(res.Reports, func(a, b Closed) int { return cmp.Compare(a.BidNumber, b.BidNumber) })
	slices.SortFunc(res.Failures, func(a, b Failure) int { return cmp.Compare(a.BidID, b.BidID) })
	slices.Sort(res.Deferred)

	level := slog.LevelInfo
	if len(res.Failures) > 0 || len(res.Deferred) > 0 {
		level = slog.LevelWarn
	}
	log.Log(ctx, level, "sweep completed",
		slog.String("event", "bid_sweep_completed"),
		slog.Time("as_of", res.AsOf),
		slog.Int("examined", res.Examined),
		slog.Int("closed", res.Closed),
		slog.Int("conflicts", res.Conflicts),
		slog.Int("deferred", len(res.Deferred)),
		slog.Int("failed", len(res.Failures)),
	)
	return res, nil
}

func (s *Sweeper) process(ctx context.Context, bid domain.Bid, res *Result, mu *sync.Mutex) {
	log := s.logger().With(slog.String("bid_id", bid.ID), slog.String("bid_number", bid.BidNumber))
	fail := func(stage string, err error) {
		log.WarnContext(ctx, "sweep could not finish bid",
			slog.String("event", "bid_sweep_failed"),
			slog.String("stage", stage),
			slog.String("error", err.Error()),
		)
		mu.Lock()
		defer mu.Unlock()
		if stage == "close" && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
			res.Deferred = append(res.Deferred, bid.ID)
			return
		}
		res.Failures = append(res.Failures, Failure{BidID: bid.ID, BidNumber: bid.BidNumber, Stage: stage, Error: err.Error()})
	}

	applied, err := ports.TransitionToClosed(ctx, s.Bids, bid.ID)
	if err != nil {
		fail("close", err)
		return
	}
	if !applied {
		log.DebugContext(ctx, "bid already closed by another sweep")
		mu.Lock()
		res.Conflicts++
		mu.Unlock()
		return
	}
	bid.Status = domain.StatusClosed
	closedAt := s.now()

	// The close is the commit point: once it applied, the summary must go out even
	// if the sweep deadline passes or the caller cancels.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	offers, err := s.Offers.RankedFor(ctx, bid.ID)
	if err != nil {
		fail("rank", err)
		return
	}
	summary := s.Assembler.Assemble(bid, offers, s.now())

	if s.Reports != nil {
		if err := s.Reports.Deliver(ctx, summary); err != nil {
			log.WarnContext(ctx, "report delivery failed", slog.String("error", err.Error()))
		}
	}
	if s.Events != nil {
		ev := ClosedEvent{BidID: bid.ID, BidNumber: bid.BidNumber, ClosedAt: closedAt, OfferCount: summary.OfferCount}
		if err := s.Events.Publish(ctx, ports.EventBidClosed, ev); err != nil {
			log.WarnContext(ctx, "bid closed event failed", slog.String("error", err.Error()))
		}
	}
	log.InfoContext(ctx, "bid closed",
		slog.String("event", "bid_closed"),
		slog.Int("offer_count", summary.OfferCount),
		slog.String("lowest", summary.LowestLabel),
	)

	mu.Lock()
	res.Closed++
	res.Reports = append(res.Reports, Closed{
		BidID:       bid.ID,
		BidNumber:   bid.BidNumber,
		OfferCount:  summary.OfferCount,
		LowestLabel: summary.LowestLabel,
	})
	mu.Unlock()
}

// ClosedEvent is published after a bid is closed so UI-facing subscribers can refresh.
type ClosedEvent struct {
	BidID      string    `json:"bid_id"`
	BidNumber  string    `json:"bid_number"`
	ClosedAt   time.Time `json:"closed_at"`
	OfferCount int       `json:"offer_count"`
}

func (e ClosedEvent) Key() string { return e.BidID }
