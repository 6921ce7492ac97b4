// Package report renders company reports from the Access dataset and
// the Dropbox project tree.
package report

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"jarvis/internal/coredb"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
	rule         = strings.Repeat("=", 60)
)

// Reporter renders the CORE report modes to Out.
type Reporter struct {
	Data *coredb.Dataset
	Tree *Tree
	Out  io.Writer
}

func (r *Reporter) title(text string) {
	fmt.Fprintln(r.Out, rule)
	fmt.Fprintln(r.Out, titleStyle.Render(text))
	fmt.Fprintln(r.Out, rule)
}

func (r *Reporter) section(text string) {
	fmt.Fprintf(r.Out, "\n%s\n", sectionStyle.Render("--- "+text+" ---"))
}

// Customer prints a client profile matched by name or kana, falling
// back to a project-name and delivery-site search.
func (r *Reporter) Customer(query string) error {
	client, ok := r.Data.FindClient(query)
	if !ok {
		fmt.Fprintf(r.Out, "No client named %q. Searching projects and delivery sites...\n", query)
		return r.customerFallback(query)
	}

	r.title("Customer profile: " + client.Name)

	projects := r.Data.ProjectsForClient(client.ID)
	fmt.Fprintf(r.Out, "\nProjects: %d\n", len(projects))

	projNos := make(map[string]bool, len(projects))
	for _, p := range projects {
		projNos[p.No] = true
	}
	var quotes, won, lost, pending []coredb.Quote
	for _, q := range r.Data.Quotes {
		if !projNos[q.ProjectNo] {
			continue
		}
		quotes = append(quotes, q)
		switch {
		case q.Won:
			won = append(won, q)
		case q.Rejected:
			lost = append(lost, q)
		default:
			pending = append(pending, q)
		}
	}

	r.section("Quotes")
	fmt.Fprintf(r.Out, "Total: %d\nWon: %d\nRejected: %d\nPending: %d\n",
		len(quotes), len(won), len(lost), len(pending))
	if len(quotes) > 0 {
		fmt.Fprintf(r.Out, "Win rate: %.1f%%\n", float64(len(won))/float64(len(quotes))*100)
	}

	var revenue float64
	for _, q := range won {
		revenue += r.Data.QuoteAmount(q.No)
	}
	if revenue > 0 {
		fmt.Fprintf(r.Out, "Won revenue (quote basis): %s\n", yen(revenue))
	}

	if devices := deviceHistogram(quotes); len(devices) > 0 {
		r.section("Device types")
		for _, d := range devices[:min(10, len(devices))] {
			fmt.Fprintf(r.Out, "  %s: %d\n", d.name, d.count)
		}
	}

	if len(projects) > 0 {
		r.section("Recent projects")
		for _, p := range projects[:min(10, len(projects))] {
			fmt.Fprintf(r.Out, "  No.%s: %s (%s) [%s]\n",
				p.No, clip(p.Name, 40), shortDate(p.StartDate), r.projectStatus(p.No))
		}
	}

	if len(pending) > 0 {
		r.section("Open quotes")
		sort.Slice(pending, func(i, j int) bool {
			return r.Data.QuoteAmount(pending[i].No) > r.Data.QuoteAmount(pending[j].No)
		})
		for _, q := range pending[:min(10, len(pending))] {
			fmt.Fprintf(r.Out, "  Quote No.%s: %s %s (%s)\n",
				q.No, clip(q.Name, 30), yen(r.Data.QuoteAmount(q.No)), shortDate(q.CreatedDate))
		}
	}

	if sites := r.deliverySites(projects); len(sites) > 0 {
		r.section("Delivery sites")
		for _, s := range sites[:min(10, len(sites))] {
			fmt.Fprintf(r.Out, "  %s\n", s.Name)
		}
	}

	r.printFolders(query, projects)

	if contacts := r.Data.ContactsForClient(client.ID); len(contacts) > 0 {
		r.section("Contacts")
		for _, c := range contacts {
			fmt.Fprintf(r.Out, "  %s %s %s\n", c.Name, c.Department, c.Role)
		}
	}
	return nil
}

func (r *Reporter) customerFallback(query string) error {
	q := strings.ToLower(query)
	var matchProjects []coredb.Project
	for _, p := range r.Data.Projects {
		if strings.Contains(strings.ToLower(p.Name), q) {
			matchProjects = append(matchProjects, p)
		}
	}
	var matchSites []coredb.DeliverySite
	for _, s := range r.Data.DeliverySites {
		if strings.Contains(strings.ToLower(s.Name), q) ||
			strings.Contains(strings.ToLower(s.Kana), q) {
			matchSites = append(matchSites, s)
		}
	}

	if len(matchProjects) > 0 {
		fmt.Fprintf(r.Out, "\nProjects matching %q: %d\n", query, len(matchProjects))
		for _, p := range matchProjects[:min(15, len(matchProjects))] {
			fmt.Fprintf(r.Out, "  No.%s: %s (%s)\n", p.No, p.Name, shortDate(p.StartDate))
		}
		clientIDs := make(map[string]bool)
		for _, p := range matchProjects {
			if p.ClientID != "" {
				clientIDs[p.ClientID] = true
			}
		}
		if len(clientIDs) > 0 {
			fmt.Fprintln(r.Out, "\nRelated clients:")
			for _, c := range r.Data.Clients {
				if clientIDs[c.ID] {
					fmt.Fprintf(r.Out, "  %s (ID=%s)\n", c.Name, c.ID)
				}
			}
		}
	}

	if len(matchSites) > 0 {
		fmt.Fprintf(r.Out, "\nDelivery sites matching %q: %d\n", query, len(matchSites))
		for _, s := range matchSites[:min(10, len(matchSites))] {
			fmt.Fprintf(r.Out, "  %s (ID=%s)\n", s.Name, s.ID)
		}
	}

	if r.Tree != nil {
		if folders := r.Tree.FindProjectFolders(query); len(folders) > 0 {
			fmt.Fprintf(r.Out, "\nDropbox folders: %d\n", len(folders))
			for _, f := range folders[:min(10, len(folders))] {
				fmt.Fprintf(r.Out, "  %s (%d files)\n", f.Name, f.Files)
			}
		}
		if files := r.Tree.SearchKeyword(query); len(files) > 0 {
			fmt.Fprintf(r.Out, "\nDropbox file search: %d\n", len(files))
			for _, f := range files[:min(10, len(files))] {
				fmt.Fprintf(r.Out, "  %s\n", f)
			}
		}
	}

	if len(matchProjects) == 0 && len(matchSites) == 0 {
		return fmt.Errorf("no matches for %q", query)
	}
	return nil
}

// Project prints a project profile. The number is extracted from
// queries like "M1012"; name search is the fallback.
func (r *Reporter) Project(query string) error {
	var project coredb.Project
	found := false
	if no := extractNumber(query); no != "" {
		project, found = r.Data.ProjectByNo(no)
	}
	if !found {
		q := strings.ToLower(query)
		var matches []coredb.Project
		for _, p := range r.Data.Projects {
			if strings.Contains(strings.ToLower(p.Name), q) {
				matches = append(matches, p)
			}
		}
		if len(matches) > 0 {
			project, found = matches[0], true
			if len(matches) > 1 {
				fmt.Fprintf(r.Out, "Multiple matches (%d):\n", len(matches))
				for _, m := range matches[:min(5, len(matches))] {
					fmt.Fprintf(r.Out, "  No.%s: %s\n", m.No, m.Name)
				}
				fmt.Fprintln(r.Out, "\nShowing the first match:")
				fmt.Fprintln(r.Out)
			}
		}
	}
	if !found {
		fmt.Fprintf(r.Out, "Project %q not found.\n", query)
		if r.Tree != nil {
			if folders := r.Tree.FindProjectFolders(query); len(folders) > 0 {
				fmt.Fprintln(r.Out, "\nDropbox folder matches:")
				for _, f := range folders[:min(10, len(folders))] {
					fmt.Fprintf(r.Out, "  %s (%d files): %s\n", f.Name, f.Files, f.Path)
				}
			}
		}
		return fmt.Errorf("project %q not found", query)
	}

	r.title(fmt.Sprintf("Project No.%s: %s", project.No, project.Name))
	fmt.Fprintf(r.Out, "Start date: %s\n", shortDate(project.StartDate))
	if client, ok := r.Data.ClientByID(project.ClientID); ok {
		fmt.Fprintf(r.Out, "Client: %s\n", client.Name)
	}
	if site, ok := r.Data.DeliveryByID(project.DeliveryID); ok {
		fmt.Fprintf(r.Out, "Delivery site: %s\n", site.Name)
	} else if project.DeliveryManual != "" {
		fmt.Fprintf(r.Out, "Delivery site: %s\n", project.DeliveryManual)
	}

	quotes := r.Data.QuotesForProject(project.No)
	r.section(fmt.Sprintf("Quotes (%d)", len(quotes)))
	for _, q := range quotes {
		fmt.Fprintf(r.Out, "  Quote No.%s: %s [%s]\n", q.No, clip(q.Name, 40), q.Status())
		fmt.Fprintf(r.Out, "    Amount: %s | Created: %s\n",
			yen(r.Data.QuoteAmount(q.No)), shortDate(q.CreatedDate))
		if q.Device != "" {
			fmt.Fprintf(r.Out, "    Device: %s (Machine: %s)\n", q.Device, q.MachineNo)
		}
		if q.OrderDate != "" {
			fmt.Fprintf(r.Out, "    Ordered: %s | Delivery: %s\n",
				shortDate(q.OrderDate), shortDate(q.DeliveryDate))
		}
		lines := r.Data.LinesFor(q.No)
		if len(lines) > 0 {
			fmt.Fprintf(r.Out, "    Line items (%d):\n", len(lines))
			for _, l := range lines[:min(8, len(lines))] {
				if total := l.Total(); total > 0 {
					fmt.Fprintf(r.Out, "      - %s x%s = %s\n", clip(l.Item, 35), l.Qty, yen(total))
				} else {
					fmt.Fprintf(r.Out, "      - %s x%s\n", clip(l.Item, 35), l.Qty)
				}
			}
			if len(lines) > 8 {
				fmt.Fprintf(r.Out, "      %s\n", faintStyle.Render(fmt.Sprintf("... %d more", len(lines)-8)))
			}
		}
	}

	var orders []coredb.Order
	for _, o := range r.Data.Orders {
		if o.ProjectNo == project.No {
			orders = append(orders, o)
		}
	}
	if len(orders) > 0 {
		r.section("Order status")
		for _, o := range orders {
			fmt.Fprintf(r.Out, "  Progress: %s\n", r.Data.ProgressName(o.ProgressID))
			fmt.Fprintf(r.Out, "  Order forecast: %s | Delivery forecast: %s\n",
				o.OrderForecast, o.DeliveryForecast)
		}
	}

	if r.Tree != nil {
		folders := r.Tree.FindProjectFolders(project.No)
		if len(folders) == 0 {
			folders = r.Tree.FindProjectFolders("M" + project.No)
		}
		if len(folders) > 0 {
			r.section("Dropbox folders")
			for _, f := range folders {
				fmt.Fprintf(r.Out, "  %s\n  Files: %d\n", f.Path, f.Files)
				types := r.Tree.FileTypes(f.Path)
				for _, cat := range fileTypeOrder {
					names := types[cat]
					if len(names) == 0 {
						continue
					}
					preview := strings.Join(names[:min(3, len(names))], ", ")
					if len(names) > 3 {
						preview += "..."
					}
					fmt.Fprintf(r.Out, "    %s: %d (%s)\n", cat, len(names), preview)
				}
			}
		}
	}

	if project.ClientID != "" {
		var siblings []coredb.Project
		for _, p := range r.Data.ProjectsForClient(project.ClientID) {
			if p.No != project.No {
				siblings = append(siblings, p)
			}
		}
		if len(siblings) > 0 {
			r.section(fmt.Sprintf("Other projects for this client (%d)", len(siblings)))
			for _, s := range siblings[:min(5, len(siblings))] {
				fmt.Fprintf(r.Out, "  No.%s: %s (%s)\n", s.No, clip(s.Name, 40), shortDate(s.StartDate))
			}
		}
	}
	return nil
}

// Summary prints the company-wide totals and top clients by won
// revenue.
func (r *Reporter) Summary() error {
	quotes := r.Data.Quotes
	var won, lost int
	for _, q := range quotes {
		switch {
		case q.Won:
			won++
		case q.Rejected:
			lost++
		}
	}

	r.title("Company summary")
	fmt.Fprintf(r.Out, "Clients: %d\n", len(r.Data.Clients))
	fmt.Fprintf(r.Out, "Projects: %d\n", len(r.Data.Projects))
	fmt.Fprintf(r.Out, "Quotes: %d (won %d / rejected %d / pending %d)\n",
		len(quotes), won, lost, len(quotes)-won-lost)
	if len(quotes) > 0 {
		fmt.Fprintf(r.Out, "Win rate: %.1f%%\n", float64(won)/float64(len(quotes))*100)
	}
	fmt.Fprintf(r.Out, "Delivery sites: %d\n", len(r.Data.DeliverySites))

	r.section("Top clients by won revenue")
	revenue := make(map[string]float64)
	for _, q := range quotes {
		if !q.Won {
			continue
		}
		p, ok := r.Data.ProjectByNo(q.ProjectNo)
		if !ok {
			continue
		}
		name := "unknown"
		if c, ok := r.Data.ClientByID(p.ClientID); ok {
			name = c.Name
		}
		revenue[name] += r.Data.QuoteAmount(q.No)
	}
	type clientRev struct {
		name string
		rev  float64
	}
	ranked := make([]clientRev, 0, len(revenue))
	for name, rev := range revenue {
		ranked = append(ranked, clientRev{name, rev})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].rev > ranked[j].rev })
	for _, cr := range ranked[:min(10, len(ranked))] {
		fmt.Fprintf(r.Out, "  %s: %s\n", cr.name, yen(cr.rev))
	}
	return nil
}

// Search looks the keyword up in the Dropbox tree only.
func (r *Reporter) Search(keyword string) error {
	if r.Tree == nil {
		return fmt.Errorf("no project tree configured")
	}
	folders := r.Tree.FindProjectFolders(keyword)
	files := r.Tree.SearchKeyword(keyword)
	if len(folders) > 0 {
		fmt.Fprintf(r.Out, "Folders: %d\n", len(folders))
		for _, f := range folders[:min(15, len(folders))] {
			fmt.Fprintf(r.Out, "  %s (%d files)\n", f.Name, f.Files)
		}
	}
	if len(files) > 0 {
		fmt.Fprintf(r.Out, "\nFiles: %d\n", len(files))
		for _, f := range files[:min(15, len(files))] {
			fmt.Fprintf(r.Out, "  %s\n", f)
		}
	}
	if len(folders) == 0 && len(files) == 0 {
		return fmt.Errorf("nothing matching %q in the project tree", keyword)
	}
	return nil
}

func (r *Reporter) projectStatus(projectNo string) string {
	quotes := r.Data.QuotesForProject(projectNo)
	hasRejected := false
	for _, q := range quotes {
		if q.Won {
			return "won"
		}
		if q.Rejected {
			hasRejected = true
		}
	}
	if hasRejected {
		return "rejected"
	}
	return "pending"
}

func (r *Reporter) deliverySites(projects []coredb.Project) []coredb.DeliverySite {
	seen := make(map[string]bool)
	var sites []coredb.DeliverySite
	for _, p := range projects {
		if p.DeliveryID == "" || seen[p.DeliveryID] {
			continue
		}
		seen[p.DeliveryID] = true
		if s, ok := r.Data.DeliveryByID(p.DeliveryID); ok {
			sites = append(sites, s)
		}
	}
	return sites
}

func (r *Reporter) printFolders(query string, projects []coredb.Project) {
	if r.Tree == nil {
		return
	}
	folders := r.Tree.FindProjectFolders(query)
	if len(folders) == 0 {
		for _, p := range projects[:min(20, len(projects))] {
			if p.No != "" {
				folders = append(folders, r.Tree.FindProjectFolders(p.No)...)
			}
		}
	}
	if len(folders) == 0 {
		return
	}
	total := 0
	for _, f := range folders {
		total += f.Files
	}
	r.section(fmt.Sprintf("Dropbox (%d folders, %d files)", len(folders), total))
	for _, f := range folders[:min(10, len(folders))] {
		fmt.Fprintf(r.Out, "  %s (%d files)\n", f.Name, f.Files)
	}
}

type deviceCount struct {
	name  string
	count int
}

func deviceHistogram(quotes []coredb.Quote) []deviceCount {
	counts := make(map[string]int)
	for _, q := range quotes {
		if q.Device != "" {
			counts[q.Device]++
		}
	}
	ranked := make([]deviceCount, 0, len(counts))
	for name, count := range counts {
		ranked = append(ranked, deviceCount{name, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].name < ranked[j].name
	})
	return ranked
}

var numberPattern = regexp.MustCompile(`\d+`)

func extractNumber(query string) string {
	return numberPattern.FindString(query)
}

// yen formats an amount with comma grouping, rounded to whole yen.
func yen(amount float64) string {
	s := strconv.FormatInt(int64(amount+0.5), 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := "¥" + strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}

func shortDate(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}
