package source

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cyp0633/caldora-sync/internal/reconcile"
	"github.com/emersion/go-ical"
	"gopkg.in/yaml.v3"
)

// Issue is a tracker issue, already normalized by whatever exported it.
// Issue files are YAML or JSON lists of these.
type Issue struct {
	ID      string     `yaml:"id"`
	Tracker string     `yaml:"tracker"`
	Title   string     `yaml:"title"`
	Body    string     `yaml:"body"`
	URL     string     `yaml:"url"`
	APIURL  string     `yaml:"api_url"`
	State   string     `yaml:"state"`
	Tags    []string   `yaml:"tags"`
	Created *time.Time `yaml:"created"`
	Closed  *time.Time `yaml:"closed"`
	// Target prefixes the summary, e.g. the project an issue belongs to.
	Target string `yaml:"target"`
}

var issueStates = map[string]string{
	"open":   "NEEDS-ACTION",
	"closed": "COMPLETED",
}

// UID is the stable identifier of the issue's task.
func (i Issue) UID() string {
	return fmt.Sprintf("sync-%s-%s", strings.ToLower(i.Tracker), i.ID)
}

func (i Issue) validate() error {
	if i.ID == "" || i.Tracker == "" {
		return fmt.Errorf("issue %q needs both id and tracker", i.Title)
	}
	if _, ok := issueStates[strings.ToLower(i.State)]; !ok {
		return fmt.Errorf("issue %s has unknown state %q", i.UID(), i.State)
	}
	return nil
}

// ParseIssues decodes an issue list. An empty document is an empty list.
func ParseIssues(r io.Reader) ([]Issue, error) {
	var issues []Issue
	if err := yaml.NewDecoder(r).Decode(&issues); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode issues: %w", err)
	}
	return issues, nil
}

// IssueItems maps every issue onto a VTODO item. Remote fields the issue
// does not set are kept.
func IssueItems(issues []Issue) ([]reconcile.Item, error) {
	items := make([]reconcile.Item, 0, len(issues))
	seen := make(map[string]bool, len(issues))
	for _, issue := range issues {
		if err := issue.validate(); err != nil {
			return nil, err
		}
		if seen[issue.UID()] {
			return nil, fmt.Errorf("duplicate issue %s", issue.UID())
		}
		seen[issue.UID()] = true
		items = append(items, reconcile.Item{
			UID:    issue.UID(),
			Kind:   ical.CompToDo,
			Apply:  issue.apply,
			Policy: reconcile.CopyExisting,
		})
	}
	return items, nil
}

func (i Issue) apply(todo *ical.Component) error {
	todo.Props.SetText(ical.PropClass, "PUBLIC")

	summary := i.Title
	if i.Target != "" {
		summary = i.Target + ": " + i.Title
	}
	todo.Props.SetText(ical.PropSummary, summary)
	setOrDelete(todo, ical.PropDescription, strings.ReplaceAll(i.Body, "\r\n", "\n"))

	if i.URL != "" {
		p := ical.NewProp(ical.PropURL)
		p.Params.Set(ical.ParamValue, "URI")
		p.Value = i.URL
		todo.Props.Set(p)
	}
	if i.APIURL != "" {
		todo.Props.SetText("X-"+strings.ToUpper(i.Tracker)+"-URL", i.APIURL)
	}

	todo.Props.SetText(ical.PropStatus, issueStates[strings.ToLower(i.State)])
	if i.Created != nil {
		todo.Props.SetDateTime(ical.PropCreated, i.Created.UTC())
	}
	if i.Closed != nil && strings.EqualFold(i.State, "closed") {
		todo.Props.SetDateTime(ical.PropCompleted, i.Closed.UTC())
	} else {
		todo.Props.Del(ical.PropCompleted)
	}

	if len(i.Tags) > 0 {
		escaped := make([]string, len(i.Tags))
		for n, tag := range i.Tags {
			escaped[n] = escapeText(tag)
		}
		p := ical.NewProp(ical.PropCategories)
		p.Value = strings.Join(escaped, ",")
		todo.Props.Set(p)
	} else {
		todo.Props.Del(ical.PropCategories)
	}
	return nil
}

func setOrDelete(comp *ical.Component, name, value string) {
	if value == "" {
		comp.Props.Del(name)
		return
	}
	comp.Props.SetText(name, value)
}
