package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/baxromumarov/sale-hunter/internal/core"
	"github.com/baxromumarov/sale-hunter/internal/export"
	"github.com/baxromumarov/sale-hunter/internal/listing"
	"github.com/baxromumarov/sale-hunter/internal/observability"
	"github.com/baxromumarov/sale-hunter/internal/store"
)

const defaultSalesLimit = 50

// handleListSales returns the dashboard rows, best deals first. The body is
// a bare JSON array.
func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	f := parseListingFilter(r)

	var listings []listing.NormalizedListing
	if s.store != nil {
		stored, err := s.store.ListListings(r.Context(), f)
		if err != nil {
			observability.IncError(observability.ErrorStore, "api")
			respondError(w, http.StatusInternalServerError, "Failed to fetch sales: "+err.Error())
			return
		}
		for _, sl := range stored {
			listings = append(listings, sl.NormalizedListing)
		}
	} else if s.monitor != nil {
		if last, ok := s.monitor.LastRun(); ok {
			listings = filterListings(last.Report.Listings, f)
		}
	}

	respondJSON(w, http.StatusOK, export.ToSaleItems(listings))
}

func parseListingFilter(r *http.Request) store.ListingFilter {
	q := r.URL.Query()
	limit, offset := parsePagination(r, defaultSalesLimit)

	f := store.ListingFilter{
		Category:   core.NormalizeCategory(q.Get("category")),
		Source:     strings.TrimSpace(q.Get("source")),
		Provenance: strings.TrimSpace(q.Get("provenance")),
		Limit:      limit,
		Offset:     offset,
	}
	if v, err := strconv.Atoi(q.Get("min_discount")); err == nil && v > 0 {
		f.MinDiscount = v
	}
	return f
}

// filterListings applies f to an in-memory report, keeping report order.
func filterListings(in []listing.NormalizedListing, f store.ListingFilter) []listing.NormalizedListing {
	var out []listing.NormalizedListing
	for _, l := range in {
		if f.Category != "" && !strings.EqualFold(f.Category, core.AllCategories) {
			if l.Category == nil || !strings.EqualFold(*l.Category, f.Category) {
				continue
			}
		}
		if f.Source != "" && !strings.EqualFold(l.Source, f.Source) {
			continue
		}
		if f.Provenance != "" && !strings.EqualFold(string(l.Provenance), f.Provenance) {
			continue
		}
		if l.DiscountPercent < f.MinDiscount {
			continue
		}
		out = append(out, l)
	}

	if f.Offset >= len(out) {
		return nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func parsePagination(r *http.Request, defaultLimit int) (int, int) {
	q := r.URL.Query()
	limit := defaultLimit
	offset := 0

	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	if v := q.Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// handleScrape runs one monitor pass and waits for it.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		respondError(w, http.StatusServiceUnavailable, "Monitor is not configured")
		return
	}

	res, err := s.monitor.RunOnce(r.Context())
	if errors.Is(err, core.ErrRunInProgress) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	body := map[string]interface{}{
		"success":          err == nil,
		"run_id":           res.RunID,
		"accepted":         res.Report.Accepted,
		"rejected":         res.Report.Rejected,
		"estimated":        res.Report.Estimated,
		"duplicates":       res.Report.Duplicates,
		"alerts_sent":      res.AlertsSent,
		"collector_errors": res.CollectorErrors,
	}
	if err != nil {
		slog.Error("scrape request failed", "error", err)
		body["error"] = err.Error()
		respondJSON(w, http.StatusInternalServerError, body)
		return
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "Storage is disabled")
		return
	}
	limit, _ := parsePagination(r, 20)

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch runs: "+err.Error())
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	respondJSON(w, http.StatusOK, runs)
}

type AddAlertRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Category    string `json:"category" default:"All" validate:"max=64"`
	MinDiscount int    `json:"minDiscount" validate:"min=0,max=100"`
	Keywords    string `json:"keywords" validate:"max=512"`
}

func (s *Server) handleAddAlert(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "Storage is disabled")
		return
	}

	var req AddAlertRequest
	if errs := readAndValidateRequest(r, &req); errs != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "Invalid alert",
			"fields": errs,
		})
		return
	}

	category := core.NormalizeCategory(req.Category)
	if strings.EqualFold(category, core.AllCategories) {
		category = core.AllCategories
	}
	alert, err := s.store.AddAlert(r.Context(), store.Alert{
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Category:    category,
		MinDiscount: req.MinDiscount,
		Keywords:    core.ParseKeywords(req.Keywords),
	})
	if err != nil {
		observability.IncError(observability.ErrorStore, "api")
		respondError(w, http.StatusInternalServerError, "Failed to save alert: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Subscription successful",
		"alert":   alert,
	})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondJSON(w, http.StatusOK, []store.Alert{})
		return
	}

	alerts, err := s.store.ListAlerts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch alerts: "+err.Error())
		return
	}
	if alerts == nil {
		alerts = []store.Alert{}
	}
	respondJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "Storage is disabled")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid alert ID")
		return
	}

	deleted, err := s.store.DeleteAlert(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete alert: "+err.Error())
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "Alert not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"stats": observability.Snapshot(),
	}
	if s.monitor != nil {
		if last, ok := s.monitor.LastRun(); ok {
			body["last_run"] = map[string]interface{}{
				"run_id":           last.RunID,
				"started_at":       last.StartedAt,
				"finished_at":      last.FinishedAt,
				"accepted":         last.Report.Accepted,
				"rejected":         last.Report.Rejected,
				"estimated":        last.Report.Estimated,
				"duplicates":       last.Report.Duplicates,
				"collector_errors": last.CollectorErrors,
			}
		}
	}
	respondJSON(w, http.StatusOK, body)
}
