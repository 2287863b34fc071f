package web

import (
	"fmt"
	"html/template"
	"net/url"
	"regexp"
	"time"

	"clubcal/internal/calendar"
	"clubcal/internal/dateutil"
	"clubcal/internal/links"
	appLog "clubcal/internal/log"
	"clubcal/internal/model"
	"clubcal/internal/sanitize"
)

const (
	monthParamLayout = "2006-01"
	// maxCellEvents is how many indicators a grid cell shows before "+N more".
	maxCellEvents = 3
)

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{3,8}$`)

// pageData is what the calendar page template renders.
type pageData struct {
	SiteName string
	Theme    string
	Accent   template.CSS

	Title      string
	MonthParam string
	PrevHref   string
	NextHref   string
	TodayHref  string

	Weekdays [7]string
	Weeks    [][]dayView

	Loading bool
	Error   string

	Selected *selectedView
	Upcoming []eventView
	Modal    *modalView

	SubscribeURL string
	ICSURL       string
	FeedHref     string
}

type dayView struct {
	Day      int
	Date     string
	Label    string
	InMonth  bool
	Today    bool
	Selected bool
	Href     string
	Events   []eventView
	More     int
}

type selectedView struct {
	Label  string
	Events []eventView
}

type eventView struct {
	ID        string
	Summary   string
	When      string
	Location  string
	AllDay    bool
	Tentative bool
	Upcoming  bool
	Href      string
	// Description is only filled for highlighted upcoming events.
	Description template.HTML
}

type modalView struct {
	ID          string
	Summary     string
	When        string
	Location    string
	Description template.HTML
	AddURL      string
	ICSHref     string
	HTMLLink    string
	CloseHref   string
}

// pageQuery is the navigational state carried in the URL.
type pageQuery struct {
	month    time.Time
	selected *time.Time
	// jump is set when the month came from the request.
	jump bool
}

func (q pageQuery) href(path string, extra url.Values) string {
	v := url.Values{}
	v.Set("month", q.month.Format(monthParamLayout))
	if q.selected != nil {
		v.Set("selected", q.selected.Format(model.DateLayout))
	}
	for k, vals := range extra {
		for _, val := range vals {
			v.Add(k, val)
		}
	}
	return path + "?" + v.Encode()
}

func (s *Server) buildPage(snap calendar.Snapshot) pageData {
	loc := s.loc
	month := snap.Month
	anchor := dateutil.StartOfMonth(month.Year, month.Month, loc)
	q := pageQuery{month: anchor, selected: snap.State.SelectedDate}

	data := pageData{
		SiteName:   s.cfg.Site.Name,
		Theme:      s.cfg.Site.Theme,
		Accent:     accentCSS(s.cfg.Site.Accent),
		Title:      fmt.Sprintf("%s %d", dateutil.MonthName(month.Month), month.Year),
		MonthParam: anchor.Format(monthParamLayout),
		PrevHref:   pageQuery{month: dateutil.AddMonths(anchor, -1)}.href("/calendar", nil),
		NextHref:   pageQuery{month: dateutil.AddMonths(anchor, 1)}.href("/calendar", nil),
		TodayHref:  "/calendar?nav=today",
		Weekdays:   dateutil.DayNames(true),
		Loading:    snap.State.IsLoading,
		Error:      snap.State.Error,
		FeedHref:   pageQuery{month: anchor}.href("/calendar.ics", nil),
	}
	if id := s.cfg.Google.CalendarID; id != "" {
		data.SubscribeURL = links.SubscriptionURL(id)
		data.ICSURL = links.ICSURL(id)
	}

	week := make([]dayView, 0, 7)
	for _, day := range month.Days {
		dq := pageQuery{month: anchor, selected: &day.Date}
		dv := dayView{
			Day:      day.Date.Day(),
			Date:     day.Date.Format(model.DateLayout),
			Label:    day.Date.Format("Monday, January 2, 2006"),
			InMonth:  day.IsCurrentMonth,
			Today:    day.IsToday,
			Selected: day.IsSelected,
			Href:     dq.href("/calendar", nil),
		}
		for i, ev := range day.Events {
			if i == maxCellEvents {
				dv.More = len(day.Events) - maxCellEvents
				break
			}
			dv.Events = append(dv.Events, s.eventView(ev, snap, dq, false))
		}
		week = append(week, dv)
		if len(week) == 7 {
			data.Weeks = append(data.Weeks, week)
			week = make([]dayView, 0, 7)
		}

		if day.IsSelected {
			sel := &selectedView{Label: dv.Label}
			for _, ev := range snap.SelectedEvents() {
				sel.Events = append(sel.Events, s.eventView(ev, snap, dq, false))
			}
			data.Selected = sel
		}
	}

	for _, ev := range snap.Upcoming {
		data.Upcoming = append(data.Upcoming, s.eventView(ev, snap, q, true))
	}
	if snap.Active != nil {
		data.Modal = s.modalView(*snap.Active, q)
	}
	return data
}

func (s *Server) eventView(ev model.CalendarEvent, snap calendar.Snapshot, q pageQuery, detailed bool) eventView {
	v := eventView{
		ID:        ev.ID,
		Summary:   displayTitle(ev),
		When:      formatWhen(ev, s.loc),
		Location:  ev.Location,
		AllDay:    ev.IsAllDay(),
		Tentative: ev.Status == model.StatusTentative,
		Upcoming:  snap.IsUpcoming(ev.ID),
		Href:      q.href("/calendar", url.Values{"event": {ev.ID}}),
	}
	if detailed {
		v.Description = sanitize.Description(ev.Description)
	}
	return v
}

func (s *Server) modalView(ev model.CalendarEvent, q pageQuery) *modalView {
	m := &modalView{
		ID:          ev.ID,
		Summary:     displayTitle(ev),
		When:        formatWhen(ev, s.loc),
		Location:    ev.Location,
		Description: sanitize.Description(ev.Description),
		ICSHref:     q.href("/calendar/events/"+url.PathEscape(ev.ID)+"/ics", nil),
		CloseHref:   q.href("/calendar", nil),
	}
	if add, err := links.AddToCalendarURL(ev, s.loc); err == nil {
		m.AddURL = add
	} else {
		appLog.Debug("add-to-calendar link unavailable", "event_id", ev.ID, "err", err)
	}
	if u, err := url.Parse(ev.HTMLLink); err == nil && (u.Scheme == "https" || u.Scheme == "http") {
		m.HTMLLink = u.String()
	}
	return m
}

func displayTitle(ev model.CalendarEvent) string {
	if ev.Summary == "" {
		return "(untitled event)"
	}
	return ev.Summary
}

// formatWhen renders an event's date and time in loc. All-day events show
// their date only; timed events show a range, collapsing the date when
// start and end fall on the same day.
func formatWhen(ev model.CalendarEvent, loc *time.Location) string {
	start, err := ev.StartTime(loc)
	if err != nil {
		return "Date to be announced"
	}
	if ev.IsAllDay() {
		return start.Format("Monday, January 2, 2006")
	}
	end, err := ev.EndTime(loc)
	if err != nil || !end.After(start) {
		return start.Format("Monday, January 2, 2006 · 3:04 PM")
	}
	if dateutil.IsSameDay(start, end) {
		return start.Format("Monday, January 2, 2006 · 3:04 PM") + " – " + end.Format("3:04 PM")
	}
	return start.Format("Jan 2, 2006 3:04 PM") + " – " + end.Format("Jan 2, 2006 3:04 PM")
}

func accentCSS(accent string) template.CSS {
	if !hexColor.MatchString(accent) {
		accent = "#8c1d40"
	}
	return template.CSS(accent)
}
