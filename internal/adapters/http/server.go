package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"freightbid/internal/adapters/xlsx"
	"freightbid/internal/domain"
	bidsvc "freightbid/internal/services/bids"
	"freightbid/internal/workers/sweeper"
)

const requestTimeout = 60 * time.Second

// BidService is the slice of the bid service the HTTP layer calls.
type BidService interface {
	Create(ctx context.Context, in bidsvc.CreateInput) (domain.Bid, error)
	BidLink(bidID string) string
	Get(ctx context.Context, bidID string) (domain.Bid, error)
	List(ctx context.Context, filter domain.BidFilter) ([]domain.Bid, error)
	SubmitOffer(ctx context.Context, bidID string, in bidsvc.OfferInput) (domain.Offer, error)
	Ranked(ctx context.Context, bidID string) ([]domain.RankedOffer, error)
	Award(ctx context.Context, bidID string) (domain.Bid, error)
	Export(ctx context.Context, bidID string) (domain.Summary, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (sweeper.Result, error)
}

type Server struct {
	bids       BidService
	sweeper    Sweeper
	renderer   xlsx.Renderer
	cronSecret string
	log        *slog.Logger
	validate   *validator.Validate
}

func New(bids BidService, sw Sweeper, renderer xlsx.Renderer, cronSecret string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		bids:       bids,
		sweeper:    sw,
		renderer:   renderer,
		cronSecret: cronSecret,
		log:        log,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes returns a chi.Router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.getHealthz)
	r.Route("/api", func(r chi.Router) {
		// The sweep bounds itself with its own deadline.
		r.Route("/cron", func(r chi.Router) {
			r.Use(s.requireCronSecret)
			r.Get("/sweep", s.runSweep)
			r.Post("/sweep", s.runSweep)
		})
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Get("/stats", s.getStats)
			r.Route("/bids", func(r chi.Router) {
				r.Post("/", s.postBid)
				r.Get("/", s.listBids)
				r.Route("/{bidId}", func(r chi.Router) {
					r.Get("/", s.getBid)
					r.Get("/offers", s.getOffers)
					r.Post("/offers", s.postOffer)
					r.Post("/award", s.postAward)
					r.Get("/export", s.getExport)
				})
			})
		})
	})
	return r
}

func (s *Server) getHealthz(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.InfoContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
