package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/client"
	"github.com/alfredjeanlab/gatepass/internal/gateway"
	"github.com/alfredjeanlab/gatepass/internal/lifecycle"
	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/paging"
	"github.com/alfredjeanlab/gatepass/internal/ui"
)

const timeLayout = "2006-01-02 15:04"

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Local().Format(timeLayout)
}

func formatQty(q interface{ String() string }, valid bool) string {
	if !valid {
		return ""
	}
	return q.String()
}

func printEntry(e *model.Entry) {
	h := &e.Header
	fmt.Printf("Gate Entry:   %s\n", h.ID)
	fmt.Printf("Plant:        %s\n", h.Plant)
	fmt.Printf("Kind:         %s\n", h.Kind)
	fmt.Printf("Status:       %s\n", ui.RenderStatus(string(h.Status)))
	if ref := h.ReferenceNumber(); ref != "" {
		fmt.Printf("Reference:    %s %s\n", h.ReferenceKind(), ref)
	}
	if p := h.Counterparty(); p.Name != "" || p.Code != "" {
		fmt.Printf("Party:        %s\n", strings.TrimSpace(p.Code+" "+p.Name))
	}
	fmt.Printf("Vehicle:      %s\n", h.Vehicle.Number)
	if h.Vehicle.Driver != "" {
		fmt.Printf("Driver:       %s %s\n", h.Vehicle.Driver, h.Vehicle.DriverPhone)
	}
	fmt.Printf("Check-in:     %s\n", formatTime(&h.CheckInAt))
	if h.CheckOutAt != nil {
		fmt.Printf("Check-out:    %s\n", formatTime(h.CheckOutAt))
	}
	if h.Remarks != "" {
		fmt.Printf("Remarks:      %s\n", h.Remarks)
	}
	if h.CreatedBy != "" {
		fmt.Printf("Created By:   %s (%s)\n", h.CreatedBy, formatTime(&h.CreatedAt))
	}
	if h.ChangedBy != "" {
		fmt.Printf("Changed By:   %s (%s)\n", h.ChangedBy, formatTime(h.ChangedAt))
	}
	if h.Status == model.StatusCancelled {
		fmt.Printf("Cancelled By: %s (%s)\n", h.CancelledBy, formatTime(h.CancelledAt))
		fmt.Printf("Reason:       %s\n", h.CancelReason)
	}
	if len(e.Items) > 0 {
		fmt.Println()
		printItems(e.Items)
	}
}

func printItems(items []model.Item) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LINE\tMATERIAL\tDESCRIPTION\tREF QTY\tBALANCE\tQTY\tUNIT\tPACKING")
	for _, it := range items {
		desc := it.MaterialDescription
		if len(desc) > 40 {
			desc = desc[:37] + "..."
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			it.LineNo,
			it.MaterialCode,
			desc,
			formatQty(it.ReferenceQty.Decimal, it.ReferenceQty.Valid),
			formatQty(it.BalanceQty.Decimal, it.BalanceQty.Valid),
			formatQty(it.EnteredQty.Decimal, it.EnteredQty.Valid),
			it.Unit,
			it.Packing,
		)
	}
	w.Flush()
}

func printEntryList(win *paging.Window[*model.Entry]) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENTRY\tKIND\tSTATUS\tVEHICLE\tREFERENCE\tPARTY\tCHECK-IN\tCHECK-OUT")
	for _, e := range win.Items {
		h := &e.Header
		party := h.Counterparty().Name
		if len(party) > 30 {
			party = party[:27] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			h.ID,
			h.Kind,
			ui.RenderStatus(string(h.Status)),
			h.Vehicle.Number,
			h.ReferenceNumber(),
			party,
			formatTime(&h.CheckInAt),
			formatTime(h.CheckOutAt),
		)
	}
	w.Flush()
	fmt.Printf("\npage %d of %d (%d entries)\n", win.Page, win.TotalPages, win.TotalItems)
}

func printDraft(v *client.DraftView) {
	if jsonOutput {
		printJSON(v)
		return
	}
	d := v.Draft
	if d == nil {
		fmt.Printf("No open draft (%s)\n", v.Phase)
		return
	}
	fmt.Printf("Draft:        %s (%s, %s)\n", d.ID, d.Origin, ui.RenderMuted(string(v.Phase)))
	fmt.Printf("Mode:         %s\n", d.Mode)
	printEntry(&model.Entry{Header: d.Header, Items: d.Items})
}

func printMessages(msgs []gateway.Message) {
	for _, m := range msgs {
		fmt.Printf("  %s %s\n", ui.RenderMessageType(string(m.Type)), m.Text)
	}
}

func printResult(verb string, res *lifecycle.Result) {
	if jsonOutput {
		printJSON(res)
		return
	}
	id := ""
	if res.Entry != nil {
		id = res.Entry.Header.ID
	}
	if res.Outcome == lifecycle.OutcomePartialSuccess {
		fmt.Printf("%s gate entry %s %s\n", verb, id, ui.RenderWarning("with warnings"))
	} else {
		fmt.Printf("%s gate entry %s\n", verb, id)
	}
	for _, w := range res.Warnings {
		fmt.Printf("  %s %s\n", ui.RenderWarning("!"), w)
	}
	printMessages(res.Messages)
}

func printEvents(evts []*model.Event) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTOPIC\tACTOR\tAT")
	for _, e := range evts {
		at := e.CreatedAt
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.ID, e.Topic, e.Actor, formatTime(&at))
	}
	w.Flush()
}

// describeError renders an API error with its field and system-of-record
// details on separate lines.
func describeError(err error) string {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	var b strings.Builder
	msg := apiErr.Message
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", apiErr.StatusCode)
	}
	b.WriteString(msg)
	for _, f := range apiErr.Fields {
		fmt.Fprintf(&b, "\n  %s: %s", f.Field, f.Message)
	}
	for _, m := range apiErr.Messages {
		fmt.Fprintf(&b, "\n  %s %s", m.Type, m.Text)
	}
	if apiErr.Malformed {
		b.WriteString("\n  (the system of record returned an unreadable response)")
	}
	return b.String()
}
