// Package reconcile converges remote calendar objects to the state an item
// source asks for. Each item is looked up by UID, rebuilt, compared in a
// normalized form and written only when it changed, with the fetched ETag
// guarding updates against concurrent writers.
package reconcile

import (
	"fmt"

	"github.com/cyp0633/caldora-sync/davclient"
	"github.com/emersion/go-ical"
)

// MergePolicy decides what an update starts from.
type MergePolicy int

const (
	// CopyExisting deep-copies the remote calendar and applies the item to
	// the matching component, so fields the source does not know survive.
	CopyExisting MergePolicy = iota
	// Rebuild starts from an empty calendar; remote-only fields are lost.
	Rebuild
)

func (p MergePolicy) String() string {
	switch p {
	case CopyExisting:
		return "copy-existing"
	case Rebuild:
		return "rebuild"
	default:
		return fmt.Sprintf("MergePolicy(%d)", int(p))
	}
}

// Item is one externally sourced calendar component.
type Item struct {
	UID  string
	Kind string // ical.CompEvent or ical.CompToDo
	// Apply writes the source's fields onto the component. It must be
	// deterministic for reconciliation to be idempotent.
	Apply  func(*ical.Component) error
	Policy MergePolicy

	// CalendarProps are copied onto a rebuilt calendar.
	CalendarProps ical.Props
	// Extra components such as VTIMEZONE that accompany a rebuilt component.
	Extra []*ical.Component
}

func (it Item) validate() error {
	if it.UID == "" {
		return fmt.Errorf("item has no UID")
	}
	if it.Kind != ical.CompEvent && it.Kind != ical.CompToDo {
		return fmt.Errorf("item %s has unsupported kind %q", it.UID, it.Kind)
	}
	if it.Apply == nil {
		return fmt.Errorf("item %s has no Apply function", it.UID)
	}
	return nil
}

// build returns the desired calendar for it. old is nil when the item does
// not exist remotely; it is never modified.
func (it Item) build(old *davclient.CalendarObject) (*ical.Calendar, *ical.Component, error) {
	var cal *ical.Calendar
	var target *ical.Component

	if old != nil && old.Calendar != nil && it.Policy == CopyExisting {
		cal = &ical.Calendar{Component: CloneComponent(old.Calendar.Component)}
		for _, child := range cal.Children {
			if child.Name == it.Kind && davclient.ComponentUID(child) == it.UID {
				target = child
				break
			}
		}
	} else {
		cal = ical.NewCalendar()
		for name, props := range it.CalendarProps {
			cal.Props[name] = cloneProps(props)
		}
		for _, extra := range it.Extra {
			cal.Children = append(cal.Children, CloneComponent(extra))
		}
	}
	if cal.Props.Get(ical.PropProductID) == nil {
		cal.Props.SetText(ical.PropProductID, davclient.ProductID)
	}
	if cal.Props.Get(ical.PropVersion) == nil {
		cal.Props.SetText(ical.PropVersion, "2.0")
	}

	if target == nil {
		target = ical.NewComponent(it.Kind)
		target.Props.SetText(ical.PropUID, it.UID)
		cal.Children = append(cal.Children, target)
	}
	if err := it.Apply(target); err != nil {
		return nil, nil, fmt.Errorf("failed to apply item %s: %w", it.UID, err)
	}
	if uid := davclient.ComponentUID(target); uid != it.UID {
		return nil, nil, fmt.Errorf("apply changed UID of %s to %q", it.UID, uid)
	}
	return cal, target, nil
}

// CloneComponent returns a deep copy of c.
func CloneComponent(c *ical.Component) *ical.Component {
	out := &ical.Component{Name: c.Name, Props: make(ical.Props, len(c.Props))}
	for name, props := range c.Props {
		out.Props[name] = cloneProps(props)
	}
	for _, child := range c.Children {
		out.Children = append(out.Children, CloneComponent(child))
	}
	return out
}

func cloneProps(props []ical.Prop) []ical.Prop {
	out := make([]ical.Prop, len(props))
	for i, p := range props {
		out[i] = ical.Prop{Name: p.Name, Value: p.Value, Params: make(ical.Params, len(p.Params))}
		for k, v := range p.Params {
			out[i].Params[k] = append([]string(nil), v...)
		}
	}
	return out
}
