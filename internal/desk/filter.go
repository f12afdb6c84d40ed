package desk

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/entity"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

// DateLayout is the calendar-day format accepted for date range bounds.
const DateLayout = "2006-01-02"

// DateRange bounds orders by calendar day; both ends are inclusive.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Criteria is the predicate used to derive the visible subset of a page.
// Empty fields contribute no constraint.
type Criteria struct {
	Search    string     `json:"search"`
	Status    string     `json:"status"`
	DateRange *DateRange `json:"dateRange,omitempty"`
}

// Empty reports whether the criteria constrain nothing.
func (c Criteria) Empty() bool {
	return strings.TrimSpace(c.Search) == "" && c.Status == "" && !c.hasRange()
}

func (c Criteria) hasRange() bool {
	return c.DateRange != nil && !c.DateRange.From.IsZero() && !c.DateRange.To.IsZero()
}

// ParseCriteria builds Criteria from raw user input. Status must be empty or a
// known status. A range with only one bound is dropped; bounds use DateLayout in loc.
func ParseCriteria(search, status, from, to string, loc *time.Location) (Criteria, error) {
	c := Criteria{Search: strings.TrimSpace(search), Status: strings.TrimSpace(status)}
	if c.Status != "" {
		if _, err := entity.ParseStatus(c.Status); err != nil {
			return Criteria{}, errorbank.BadRequest("invalid status filter", errorbank.WithCause(err))
		}
	}

	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return c, nil
	}
	fromDay, err := time.ParseInLocation(DateLayout, from, loc)
	if err != nil {
		return Criteria{}, errorbank.BadRequest("invalid from date", errorbank.WithCause(err), errorbank.WithDetail("from", from))
	}
	toDay, err := time.ParseInLocation(DateLayout, to, loc)
	if err != nil {
		return Criteria{}, errorbank.BadRequest("invalid to date", errorbank.WithCause(err), errorbank.WithDetail("to", to))
	}
	c.DateRange = &DateRange{From: fromDay, To: toDay}
	return c, nil
}

// ApplyFilters returns the orders matching every clause of c, in input order.
// The input slice is never modified. Day boundaries of the date range are taken in loc.
func ApplyFilters(orders []dto.Order, c Criteria, loc *time.Location) []dto.Order {
	out := make([]dto.Order, 0, len(orders))
	if len(orders) == 0 || c.Empty() {
		return append(out, orders...)
	}
	if loc == nil {
		loc = time.Local
	}

	m := newMatcher(c, loc)
	for i := range orders {
		if m.match(&orders[i]) {
			out = append(out, orders[i])
		}
	}
	return out
}

type matcher struct {
	search  string
	folded  string
	fold    cases.Caser
	status  string
	ranged  bool
	from    time.Time
	toAfter time.Time
	loc     *time.Location
}

func newMatcher(c Criteria, loc *time.Location) *matcher {
	m := &matcher{
		search: strings.TrimSpace(c.Search),
		fold:   cases.Fold(),
		status: c.Status,
		loc:    loc,
	}
	if m.search != "" {
		m.folded = m.fold.String(m.search)
	}
	if c.hasRange() {
		m.ranged = true
		m.from = startOfDay(c.DateRange.From, loc)
		m.toAfter = startOfDay(c.DateRange.To, loc).AddDate(0, 0, 1)
	}
	return m
}

func (m *matcher) match(o *dto.Order) bool {
	if m.search != "" && !m.matchSearch(o) {
		return false
	}
	if m.status != "" && o.Status != m.status {
		return false
	}
	if m.ranged {
		created, ok := o.CreatedAt.In(m.loc)
		if !ok || created.Before(m.from) || !created.Before(m.toAfter) {
			return false
		}
	}
	return true
}

func (m *matcher) matchSearch(o *dto.Order) bool {
	if strings.Contains(o.BuyerPhone, m.search) {
		return true
	}
	for _, field := range [...]string{o.ID, o.BuyerName, o.SellerName, o.StoreName} {
		if m.contains(field) {
			return true
		}
	}
	for _, item := range o.Items {
		if m.contains(item.ProductName) {
			return true
		}
	}
	return false
}

func (m *matcher) contains(field string) bool {
	if field == "" {
		return false
	}
	return strings.Contains(m.fold.String(field), m.folded)
}

// startOfDay keeps the calendar date of t and places midnight in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
