package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cyp0633/caldora-sync/davclient"
	"github.com/cyp0633/caldora-sync/internal/recur"
	"github.com/emersion/go-ical"
	"github.com/samber/mo"
	"github.com/spf13/cobra"
)

func newPrincipalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "principal",
		Short: "Print the current user principal and its scheduling inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := a.collection()
			if err != nil {
				return err
			}
			principal, err := a.client.CurrentUserPrincipal(cmd.Context(), target)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Current user principal: %s\n", principal)
			inbox, err := a.client.InboxURL(cmd.Context(), principal.String())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Inbox URL: %s\n", inbox)
			return nil
		},
	}
}

func newFreeBusyCmd(a *app) *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "freebusy",
		Short: "Print the free-busy report of the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := a.collection()
			if err != nil {
				return err
			}
			from, to := mo.None[time.Time](), mo.None[time.Time]()
			if start != "" {
				t, err := parseTime(start)
				if err != nil {
					return err
				}
				from = mo.Some(t)
			}
			if end != "" {
				t, err := parseTime(end)
				if err != nil {
					return err
				}
				to = mo.Some(t)
			}
			body, err := a.client.FreeBusy(cmd.Context(), target, from, to)
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(body)
			return err
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "Start of the range")
	cmd.Flags().StringVar(&end, "end", "", "End of the range")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var (
		kind    string
		summary string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the objects of the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := a.collection()
			if err != nil {
				return err
			}
			kind = strings.ToUpper(kind)
			query := davclient.NewObjectQuery(kind).Limit(limit)
			if summary != "" {
				query.Summary(summary)
			}
			objects, err := a.client.ListObjects(cmd.Context(), target, query)
			if err != nil {
				return err
			}

			engine := recur.NewEngine()
			now := time.Now()
			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "UID\tSTATUS\tNEXT\tSUMMARY")
			for _, obj := range objects {
				comp, ok := obj.Component(kind).Get()
				if !ok {
					continue
				}
				title, _ := comp.Props.Text(ical.PropSummary)
				status, _ := comp.Props.Text(ical.PropStatus)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					davclient.ComponentUID(comp), dash(status), nextOccurrence(engine, comp, now), title)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&kind, "kind", ical.CompToDo, "Component kind (VTODO or VEVENT)")
	cmd.Flags().StringVar(&summary, "summary", "", "Only objects whose summary contains this text")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of objects")
	return cmd
}

// nextOccurrence formats the next start of comp after now, or "-".
func nextOccurrence(engine *recur.Engine, comp *ical.Component, now time.Time) string {
	span, ok := recur.SpanFromComponent(comp)
	if !ok {
		return "-"
	}
	occ, ok, err := engine.Next(span, recur.InfoFromComponent(comp), now)
	if err != nil || !ok {
		return "-"
	}
	return occ.Start.Local().Format("2006-01-02 15:04")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newDeleteCmd(a *app) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "delete UID",
		Short: "Delete one object, unless it changed since it was read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := a.collection()
			if err != nil {
				return err
			}
			obj, err := a.client.GetItemByUID(cmd.Context(), target, strings.ToUpper(kind), args[0])
			if err != nil {
				return err
			}
			if err := a.client.DeleteObject(cmd.Context(), obj.Href, obj.ETag); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Deleted %s (%s)\n", args[0], obj.Href)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", ical.CompToDo, "Component kind (VTODO or VEVENT)")
	return cmd
}

func newDiscoverCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discover [LOCATION]",
		Short: "List the calendars of the user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			location := a.cfg.BaseURL
			if len(args) == 1 {
				location = args[0]
			}
			calendars, err := a.client.FindCalendars(cmd.Context(), location, nil)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCOLOR\tCTAG\tACCESS\tURL")
			for _, cal := range calendars {
				access := "rw"
				if cal.ReadOnly {
					access = "ro"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", dash(cal.Name), dash(cal.Color), dash(cal.CTag), access, cal.URI)
			}
			return w.Flush()
		},
	}
}
