// Package web serves the club calendar: the month page, the event detail
// modal, .ics downloads and a small JSON API.
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"regexp"
	"strings"
	"time"

	"clubcal/internal/calendar"
	"clubcal/internal/config"
	"clubcal/internal/ics"
	appLog "clubcal/internal/log"
	"clubcal/internal/model"
)

// MetadataSource reports the calendar's identity and access role. A nil
// result with a nil error means the calendar is not configured.
type MetadataSource interface {
	FetchMetadata(ctx context.Context, calendarID string) (*model.CalendarMetadata, error)
}

// Options wires a Server. Source is usually a *MonthCache.
type Options struct {
	Config   *config.Config
	Source   calendar.EventSource
	Metadata MetadataSource
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Server provides the calendar pages and the JSON API.
type Server struct {
	cfg  *config.Config
	loc  *time.Location
	src  calendar.EventSource
	meta MetadataSource
	now  func() time.Time
	mux  *http.ServeMux
	tmpl *template.Template
}

// embeddedAssets holds page templates and the stylesheet.
//
//go:embed templates/*.tmpl static
var embeddedAssets embed.FS

// NewServer constructs a new Server.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("web: config is required")
	}
	if opts.Source == nil {
		return nil, errors.New("web: event source is required")
	}

	tmpl, err := template.New("clubcal").ParseFS(embeddedAssets, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("web: parse templates: %w", err)
	}

	s := &Server{
		cfg:  opts.Config,
		loc:  opts.Config.Location(),
		src:  opts.Source,
		meta: opts.Metadata,
		now:  opts.Now,
		mux:  http.NewServeMux(),
		tmpl: tmpl,
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the root handler, wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return requestLogger(s.mux)
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/calendar", http.StatusFound)
	})
	s.mux.HandleFunc("GET /calendar", s.handleCalendar)
	s.mux.HandleFunc("GET /calendar/events/{id}", s.handleEventModal)
	s.mux.HandleFunc("GET /calendar/events/{id}/ics", s.handleEventICS)
	s.mux.HandleFunc("GET /calendar.ics", s.handleMonthICS)
	s.mux.HandleFunc("GET /api/month", s.handleAPIMonth)
	s.mux.HandleFunc("GET /api/events", s.handleAPIEvents)
	s.mux.HandleFunc("GET /api/metadata", s.handleAPIMetadata)
	s.mux.Handle("GET /static/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// staticFileServer serves the embedded stylesheet under /static/.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedAssets, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static assets not available", http.StatusServiceUnavailable)
		})
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// controllerFor builds a per-request controller from the URL's month and
// selected day.
func (s *Server) controllerFor(r *http.Request) (*calendar.Controller, pageQuery, error) {
	q, err := s.parsePageQuery(r)
	if err != nil {
		return nil, q, err
	}
	return calendar.NewController(s.src, calendar.Options{
		Location: s.loc,
		Now:      s.now,
		Upcoming: s.cfg.UpcomingCount,
		Initial:  q.month,
		Selected: q.selected,
	}), q, nil
}

func (s *Server) parsePageQuery(r *http.Request) (pageQuery, error) {
	values := r.URL.Query()
	q := pageQuery{month: s.now().In(s.loc)}

	if m := values.Get("month"); m != "" {
		t, err := time.ParseInLocation(monthParamLayout, m, s.loc)
		if err != nil {
			return q, fmt.Errorf("invalid month %q, want YYYY-MM", m)
		}
		q.month = t
		q.jump = true
	}
	if sel := values.Get("selected"); sel != "" {
		t, err := time.ParseInLocation(model.DateLayout, sel, s.loc)
		if err != nil {
			return q, fmt.Errorf("invalid selected date %q, want YYYY-MM-DD", sel)
		}
		q.selected = &t
	}
	return q, nil
}

// load runs the navigation command carried by nav and returns the
// resulting snapshot. Without nav, an explicit month param is a jump and
// a bare request mounts on the current month. Fetch failures are already
// reflected in the snapshot's error state.
func (s *Server) load(ctx context.Context, ctrl *calendar.Controller, q pageQuery, nav string) calendar.Snapshot {
	var err error
	switch {
	case nav == "prev":
		err = ctrl.GoToPreviousMonth(ctx)
	case nav == "next":
		err = ctrl.GoToNextMonth(ctx)
	case nav == "today":
		err = ctrl.GoToToday(ctx)
	case q.jump:
		err = ctrl.GoToMonth(ctx, q.month.Year(), q.month.Month())
	default:
		err = ctrl.Load(ctx)
	}
	if err != nil {
		appLog.Warn("calendar load failed", "nav", nav, "err", err)
	}
	return ctrl.Snapshot()
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	ctrl, q, err := s.controllerFor(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.load(r.Context(), ctrl, q, r.URL.Query().Get("nav"))
	if id := r.URL.Query().Get("event"); id != "" {
		if _, ok := ctrl.OpenEvent(id); !ok {
			appLog.Debug("requested event not in month", "event_id", id)
		}
	}

	s.render(w, http.StatusOK, "page", s.buildPage(ctrl.Snapshot()))
}

// handleEventModal renders only the detail modal, for progressive
// enhancement where the page fetches it in place.
func (s *Server) handleEventModal(w http.ResponseWriter, r *http.Request) {
	snap, ev, status := s.findEvent(r)
	if ev == nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	q := pageQuery{month: time.Date(snap.Month.Year, snap.Month.Month, 1, 0, 0, 0, 0, s.loc), selected: snap.State.SelectedDate}
	s.render(w, http.StatusOK, "modal", s.modalView(*ev, q))
}

func (s *Server) handleEventICS(w http.ResponseWriter, r *http.Request) {
	_, ev, status := s.findEvent(r)
	if ev == nil {
		http.Error(w, http.StatusText(status), status)
		return
	}

	var buf bytes.Buffer
	if err := ics.WriteEvent(&buf, *ev, s.loc); err != nil {
		appLog.Error("event ics export failed", err, "event_id", ev.ID)
		http.Error(w, "event cannot be exported", http.StatusUnprocessableEntity)
		return
	}
	writeCalendar(w, icsFilename(ev.ID), buf.Bytes())
}

func (s *Server) handleMonthICS(w http.ResponseWriter, r *http.Request) {
	ctrl, q, err := s.controllerFor(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	snap := s.load(r.Context(), ctrl, q, "")
	if snap.Phase == calendar.PhaseError && len(snap.Events) == 0 {
		http.Error(w, snap.State.Error, http.StatusBadGateway)
		return
	}

	var buf bytes.Buffer
	err = ics.WriteCalendar(&buf, s.cfg.Site.Name, snap.Events, s.loc)
	if errors.Is(err, ics.ErrNoEvents) {
		http.Error(w, "no events this month", http.StatusNotFound)
		return
	}
	if err != nil {
		appLog.Error("month ics export failed", err, "year", snap.Month.Year, "month", int(snap.Month.Month))
		http.Error(w, "failed to export calendar", http.StatusInternalServerError)
		return
	}
	writeCalendar(w, fmt.Sprintf("clubcal-%04d-%02d.ics", snap.Month.Year, int(snap.Month.Month)), buf.Bytes())
}

// findEvent loads the requested month and opens the event named by the
// {id} path value.
func (s *Server) findEvent(r *http.Request) (calendar.Snapshot, *model.CalendarEvent, int) {
	ctrl, q, err := s.controllerFor(r)
	if err != nil {
		return calendar.Snapshot{}, nil, http.StatusBadRequest
	}
	snap := s.load(r.Context(), ctrl, q, "")
	ev, ok := ctrl.OpenEvent(r.PathValue("id"))
	if !ok {
		if snap.Phase == calendar.PhaseError {
			return snap, nil, http.StatusBadGateway
		}
		return snap, nil, http.StatusNotFound
	}
	return ctrl.Snapshot(), &ev, http.StatusOK
}

// monthResponse is the JSON response shape for /api/month.
type monthResponse struct {
	Year           int                 `json:"year"`
	Month          int                 `json:"month"`
	MonthIndex     int                 `json:"month_index"`
	FirstDayOfWeek int                 `json:"first_day_of_week"`
	DaysInMonth    int                 `json:"days_in_month"`
	Days           []model.CalendarDay `json:"days"`
	State          model.CalendarState `json:"state"`
	Upcoming       []string            `json:"upcoming"`
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Year   int                   `json:"year"`
	Month  int                   `json:"month"`
	Events []model.CalendarEvent `json:"events"`
	Error  string                `json:"error,omitempty"`
}

func (s *Server) handleAPIMonth(w http.ResponseWriter, r *http.Request) {
	ctrl, q, err := s.controllerFor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap := s.load(r.Context(), ctrl, q, r.URL.Query().Get("nav"))

	upcoming := make([]string, 0, len(snap.Upcoming))
	for _, ev := range snap.Upcoming {
		upcoming = append(upcoming, ev.ID)
	}
	writeJSON(w, http.StatusOK, monthResponse{
		Year:           snap.Month.Year,
		Month:          int(snap.Month.Month),
		MonthIndex:     int(snap.Month.Month) - 1,
		FirstDayOfWeek: int(snap.Month.FirstDayOfWeek),
		DaysInMonth:    snap.Month.DaysInMonth,
		Days:           snap.Month.Days,
		State:          snap.State,
		Upcoming:       upcoming,
	})
}

func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	ctrl, q, err := s.controllerFor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap := s.load(r.Context(), ctrl, q, "")
	writeJSON(w, http.StatusOK, eventsResponse{
		Year:   snap.Month.Year,
		Month:  int(snap.Month.Month),
		Events: snap.Events,
		Error:  snap.State.Error,
	})
}

func (s *Server) handleAPIMetadata(w http.ResponseWriter, r *http.Request) {
	if s.meta == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	meta, err := s.meta.FetchMetadata(r.Context(), "")
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to fetch calendar metadata")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// render executes a template into a buffer first so a template error never
// produces a half-written page.
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		appLog.Error("template render failed", err, "template", name)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func icsFilename(id string) string {
	name := strings.Trim(unsafeFilename.ReplaceAllString(id, "-"), "-.")
	if name == "" {
		name = "event"
	}
	return name + ".ics"
}

func writeCalendar(w http.ResponseWriter, filename string, body []byte) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
