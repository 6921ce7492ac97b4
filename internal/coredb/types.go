// Package coredb reads the company's Access database through mdb-export
// and serves it as typed records, with a local SQLite cache so repeated
// queries skip the slow export.
package coredb

import (
	"sort"
	"strconv"
	"strings"
)

// Client is a row of the 販売先 table.
type Client struct {
	ID   string
	Name string
	Kana string
}

// ClientDetail is a row of 販売先詳細, linking contacts to a client.
type ClientDetail struct {
	ID       string
	ClientID string
}

// Contact is a row of 販売先担当.
type Contact struct {
	Name       string
	DetailID   string
	Department string
	Role       string
}

// Quote is a row of 見積書. Won and Rejected come from the "1"/"0"
// flag columns; a quote with neither set is pending.
type Quote struct {
	No           string
	ProjectNo    string
	Name         string
	Device       string
	MachineNo    string
	CreatedDate  string
	OrderDate    string
	DeliveryDate string
	Won          bool
	Rejected     bool
}

// Pending reports a quote that is neither won nor rejected.
func (q Quote) Pending() bool { return !q.Won && !q.Rejected }

// Status is the human label for the quote's outcome.
func (q Quote) Status() string {
	switch {
	case q.Won:
		return "won"
	case q.Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// QuoteLine is a row of 見積書詳細.
type QuoteLine struct {
	QuoteNo   string
	Item      string
	Qty       string
	UnitPrice string
}

// Total is qty times unit price. Prices arrive comma-grouped
// ("1,200,000"); rows that do not parse contribute zero.
func (l QuoteLine) Total() float64 {
	qty, ok := parseNumber(l.Qty)
	if !ok {
		return 0
	}
	price, ok := parseNumber(l.UnitPrice)
	if !ok {
		return 0
	}
	return qty * price
}

// Project is a row of プロジェクトデータ.
type Project struct {
	No             string
	Name           string
	ClientID       string
	DeliveryID     string
	DeliveryManual string
	StartDate      string
	MLID           string
}

// DeliverySite is a row of 納品先.
type DeliverySite struct {
	ID   string
	Name string
	Kana string
}

// Order is a row of 受注一覧表.
type Order struct {
	ProjectNo        string
	ProgressID       string
	OrderForecast    string
	DeliveryForecast string
}

// ProgressState is a row of 進捗状況.
type ProgressState struct {
	ID   string
	Name string
}

// Dataset holds every table the reports read from.
type Dataset struct {
	Clients        []Client
	ClientDetails  []ClientDetail
	Contacts       []Contact
	Quotes         []Quote
	QuoteLines     []QuoteLine
	Projects       []Project
	DeliverySites  []DeliverySite
	Orders         []Order
	ProgressStates []ProgressState
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// QuoteAmount sums the line totals of one quote.
func (d *Dataset) QuoteAmount(quoteNo string) float64 {
	var total float64
	for _, l := range d.QuoteLines {
		if l.QuoteNo == quoteNo {
			total += l.Total()
		}
	}
	return total
}

// LinesFor returns a quote's line items in table order.
func (d *Dataset) LinesFor(quoteNo string) []QuoteLine {
	var lines []QuoteLine
	for _, l := range d.QuoteLines {
		if l.QuoteNo == quoteNo {
			lines = append(lines, l)
		}
	}
	return lines
}

// QuotesForProject returns the quotes filed under one project number.
func (d *Dataset) QuotesForProject(projectNo string) []Quote {
	var quotes []Quote
	for _, q := range d.Quotes {
		if q.ProjectNo == projectNo {
			quotes = append(quotes, q)
		}
	}
	return quotes
}

// ProjectsForClient returns a client's projects, newest start date first.
func (d *Dataset) ProjectsForClient(clientID string) []Project {
	var projects []Project
	for _, p := range d.Projects {
		if p.ClientID == clientID {
			projects = append(projects, p)
		}
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].StartDate > projects[j].StartDate
	})
	return projects
}

// FindClient matches a client by substring of name or kana,
// case-insensitively.
func (d *Dataset) FindClient(query string) (Client, bool) {
	q := strings.ToLower(query)
	for _, c := range d.Clients {
		if strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(strings.ToLower(c.Kana), q) {
			return c, true
		}
	}
	return Client{}, false
}

// ClientByID looks a client up by primary key.
func (d *Dataset) ClientByID(id string) (Client, bool) {
	for _, c := range d.Clients {
		if c.ID == id {
			return c, true
		}
	}
	return Client{}, false
}

// DeliveryByID looks a delivery site up by primary key.
func (d *Dataset) DeliveryByID(id string) (DeliverySite, bool) {
	for _, s := range d.DeliverySites {
		if s.ID == id {
			return s, true
		}
	}
	return DeliverySite{}, false
}

// ProjectByNo looks a project up by its number.
func (d *Dataset) ProjectByNo(no string) (Project, bool) {
	for _, p := range d.Projects {
		if p.No == no {
			return p, true
		}
	}
	return Project{}, false
}

// ProgressName resolves a progress-state ID to its label.
func (d *Dataset) ProgressName(id string) string {
	for _, s := range d.ProgressStates {
		if s.ID == id {
			return s.Name
		}
	}
	return "unknown"
}

// ContactsForClient resolves contacts through the client-detail link
// table.
func (d *Dataset) ContactsForClient(clientID string) []Contact {
	detailIDs := make(map[string]bool)
	for _, cd := range d.ClientDetails {
		if cd.ClientID == clientID {
			detailIDs[cd.ID] = true
		}
	}
	var contacts []Contact
	for _, c := range d.Contacts {
		if detailIDs[c.DetailID] {
			contacts = append(contacts, c)
		}
	}
	return contacts
}
