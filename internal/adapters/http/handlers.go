package httpadapter

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	"github.com/shopspring/decimal"

	"freightbid/internal/adapters/xlsx"
	"freightbid/internal/domain"
	bidsvc "freightbid/internal/services/bids"
)

type createBidRequest struct {
	BidNumber            string          `json:"bid_number" validate:"omitempty,max=32"`
	Origin               string          `json:"origin" validate:"required,max=120"`
	Destination          string          `json:"destination" validate:"required,max=120"`
	MaterialType         string          `json:"material_type" validate:"required,max=120"`
	WeightTons           decimal.Decimal `json:"weight_tons"`
	PickupDate           string          `json:"pickup_date" validate:"required"`
	RequiredDeliveryDate string          `json:"required_delivery_date" validate:"required"`
	Notes                string          `json:"additional_notes" validate:"max=2000"`
}

type submitOfferRequest struct {
	CompanyName           string          `json:"company_name" validate:"required,max=200"`
	PersonName            string          `json:"person_name" validate:"required,max=120"`
	MobileNumber          string          `json:"mobile_number" validate:"required,max=20"`
	AlternateNumber       string          `json:"alternate_number" validate:"max=20"`
	QuotedPrice           decimal.Decimal `json:"quoted_price"`
	EstimatedDeliveryDate string          `json:"estimated_delivery_date" validate:"required"`
	VehicleType           string          `json:"vehicle_type" validate:"max=120"`
	AdditionalComments    string          `json:"additional_comments" validate:"max=2000"`
}

type bidResponse struct {
	domain.Bid
	BidLink string `json:"bid_link,omitempty"`
}

func (s *Server) decode(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return domain.NewValidationError("body", "is not valid JSON: "+err.Error())
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.NewValidationError(fe.Field(), fmt.Sprintf("failed %q validation", fe.Tag()))
		}
		return domain.NewValidationError("body", err.Error())
	}
	return nil
}

func bidIDParam(r *http.Request) (string, error) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "bidId", chi.URLParam(r, "bidId"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		return "", domain.NewValidationError("bidId", err.Error())
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", domain.NewValidationError("bidId", "must be a UUID")
	}
	return id, nil
}

func listFilter(r *http.Request) (domain.BidFilter, error) {
	var (
		status        *string
		limit, offset *int
	)
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "status", q, &status); err != nil {
		return domain.BidFilter{}, domain.NewValidationError("status", err.Error())
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &limit); err != nil {
		return domain.BidFilter{}, domain.NewValidationError("limit", err.Error())
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", q, &offset); err != nil {
		return domain.BidFilter{}, domain.NewValidationError("offset", err.Error())
	}
	f := domain.BidFilter{Limit: 50}
	if status != nil {
		f.Status = domain.Status(*status)
	}
	if limit != nil {
		if *limit < 1 || *limit > 500 {
			return domain.BidFilter{}, domain.NewValidationError("limit", "must be in [1,500]")
		}
		f.Limit = *limit
	}
	if offset != nil {
		if *offset < 0 {
			return domain.BidFilter{}, domain.NewValidationError("offset", "must not be negative")
		}
		f.Offset = *offset
	}
	return f, nil
}

func (s *Server) runSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.sweeper.Sweep(r.Context())
	if err != nil {
		s.log.ErrorContext(r.Context(), "sweep could not start", "error", err)
		if statusFor(err) == http.StatusInternalServerError {
			err = fmt.Errorf("%w: %w", domain.ErrTransientStore, err)
		}
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, res)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.bids.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, st)
}

func (s *Server) postBid(w http.ResponseWriter, r *http.Request) {
	var req createBidRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.WeightTons.IsNegative() {
		writeError(w, r, domain.NewValidationError("weight_tons", "must not be negative"))
		return
	}
	bid, err := s.bids.Create(r.Context(), bidsvc.CreateInput{
		BidNumber:            req.BidNumber,
		Origin:               req.Origin,
		Destination:          req.Destination,
		MaterialType:         req.MaterialType,
		WeightTons:           req.WeightTons,
		PickupDate:           req.PickupDate,
		RequiredDeliveryDate: req.RequiredDeliveryDate,
		Notes:                req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, bidResponse{Bid: bid, BidLink: s.bids.BidLink(bid.ID)})
}

func (s *Server) listBids(w http.ResponseWriter, r *http.Request) {
	f, err := listFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.bids.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, list)
}

func (s *Server) getBid(w http.ResponseWriter, r *http.Request) {
	id, err := bidIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	bid, err := s.bids.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, bidResponse{Bid: bid, BidLink: s.bids.BidLink(bid.ID)})
}

func (s *Server) getOffers(w http.ResponseWriter, r *http.Request) {
	id, err := bidIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ranked, err := s.bids.Ranked(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, ranked)
}

func (s *Server) postOffer(w http.ResponseWriter, r *http.Request) {
	id, err := bidIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req submitOfferRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	offer, err := s.bids.SubmitOffer(r.Context(), id, bidsvc.OfferInput{
		CompanyName:           req.CompanyName,
		PersonName:            req.PersonName,
		MobileNumber:          req.MobileNumber,
		AlternateNumber:       req.AlternateNumber,
		QuotedPrice:           req.QuotedPrice,
		EstimatedDeliveryDate: req.EstimatedDeliveryDate,
		VehicleType:           req.VehicleType,
		AdditionalComments:    req.AdditionalComments,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, offer)
}

func (s *Server) postAward(w http.ResponseWriter, r *http.Request) {
	id, err := bidIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	bid, err := s.bids.Award(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, bid)
}

// getExport serves the workbook, or the raw summary when the client asks for JSON.
func (s *Server) getExport(w http.ResponseWriter, r *http.Request) {
	id, err := bidIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.bids.Export(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		render.JSON(w, r, summary)
		return
	}
	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, summary); err != nil {
		s.log.ErrorContext(r.Context(), "export render failed", "bid_id", id, "error", err)
		writeError(w, r, errors.New("failed to generate report"))
		return
	}
	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", xlsx.Filename(summary)))
	_, _ = w.Write(buf.Bytes())
}
