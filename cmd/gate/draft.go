package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/client"
	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/ui"
	"github.com/spf13/cobra"
)

var draftCmd = &cobra.Command{
	Use:     "draft",
	Short:   "Edit the session's open gate entry draft",
	GroupID: "entry",
}

var draftNewCmd = &cobra.Command{
	Use:   "new <kind>",
	Short: "Open a blank draft (inward_po, inward_subcontract, inward_manual, outward_billing, outward_rgp, outward_nrgp)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plant, _ := cmd.Flags().GetString("plant")
		rows, _ := cmd.Flags().GetInt("rows")
		v, err := gateClient.NewDraft(cmd.Context(), &client.NewDraftRequest{
			Kind:  model.DocumentKind(args[0]),
			Plant: plant,
			Rows:  rows,
		})
		if err != nil {
			return err
		}
		printDraft(v)
		return nil
	},
}

var draftShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the open draft",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := gateClient.Draft(cmd.Context())
		if err != nil {
			return err
		}
		printDraft(v)
		return nil
	},
}

var draftHeaderCmd = &cobra.Command{
	Use:   "header",
	Short: "Edit header fields of the open draft",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := headerPatchFromFlags(cmd)
		if err != nil {
			return err
		}
		v, err := gateClient.PatchHeader(cmd.Context(), p)
		if err != nil {
			return err
		}
		printDraft(v)
		return nil
	},
}

// headerPatchFromFlags builds a patch from the flags the user set. Vehicle
// fields are merged into the draft's current vehicle.
func headerPatchFromFlags(cmd *cobra.Command) (model.HeaderPatch, error) {
	var p model.HeaderPatch
	flags := cmd.Flags()
	str := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}
	date := func(name string) (*time.Time, error) {
		s := str(name)
		if s == nil {
			return nil, nil
		}
		t, err := time.Parse(time.DateOnly, *s)
		if err != nil {
			return nil, fmt.Errorf("--%s: want YYYY-MM-DD: %w", name, err)
		}
		return &t, nil
	}

	vehicleFields := func(v *model.Vehicle) map[string]*string {
		return map[string]*string{
			"vehicle":      &v.Number,
			"driver":       &v.Driver,
			"driver-phone": &v.DriverPhone,
			"transporter":  &v.Transporter,
			"lr-number":    &v.LRNumber,
		}
	}
	var blank model.Vehicle
	if slices.ContainsFunc(slices.Collect(maps.Keys(vehicleFields(&blank))), flags.Changed) {
		cur, err := gateClient.Draft(cmd.Context())
		if err != nil {
			return p, err
		}
		var veh model.Vehicle
		if cur.Draft != nil {
			veh = cur.Draft.Header.Vehicle
		}
		for name, dst := range vehicleFields(&veh) {
			if v := str(name); v != nil {
				*dst = *v
			}
		}
		p.Vehicle = &veh
	}

	p.Remarks = str("remarks")
	p.Counterparty = str("party")
	p.InvoiceNumber = str("invoice")
	p.ChallanNumber = str("challan")
	p.Purpose = str("purpose")
	var err error
	if p.InvoiceDate, err = date("invoice-date"); err != nil {
		return p, err
	}
	if p.ExpectedReturn, err = date("expected-return"); err != nil {
		return p, err
	}
	return p, nil
}

var draftFetchCmd = &cobra.Command{
	Use:   "fetch <reference-number>",
	Short: "Load the draft from its reference document (PO, subcontract order or billing document)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := gateClient.FetchReference(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(resp)
			return nil
		}
		if resp.Resolution != nil {
			printMessages(resp.Resolution.Warnings)
		}
		v, err := gateClient.Draft(cmd.Context())
		if err != nil {
			return err
		}
		printDraft(v)
		return nil
	},
}

var draftManualCmd = &cobra.Command{
	Use:   "manual",
	Short: "Drop the reference and its lines and continue in manual mode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := gateClient.ResetToManual(cmd.Context())
		if err != nil {
			return err
		}
		printDraft(v)
		return nil
	},
}

var draftItemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List the lines of the open draft a page at a time",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		size, _ := cmd.Flags().GetInt("page-size")
		w, err := gateClient.Items(cmd.Context(), page, size)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(w)
			return nil
		}
		printItems(w.Items)
		fmt.Printf("\npage %d of %d (%d lines)\n", w.Page, w.TotalPages, w.TotalItems)
		return nil
	},
}

var draftAddCmd = &cobra.Command{
	Use:   "add [rows]",
	Short: "Append blank manual lines",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n := 1
		if len(args) == 1 {
			var err error
			if n, err = strconv.Atoi(args[0]); err != nil {
				return fmt.Errorf("invalid row count %q", args[0])
			}
		}
		v, err := gateClient.AddRows(cmd.Context(), n)
		if err != nil {
			return err
		}
		printDraft(v)
		return nil
	},
}

var draftSetCmd = &cobra.Command{
	Use:   "set <line>",
	Short: "Set material, quantity or packing of a line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid line %q", args[0])
		}
		var p client.ItemPatch
		if cmd.Flags().Changed("material") {
			v, _ := cmd.Flags().GetString("material")
			p.MaterialCode = &v
		}
		if cmd.Flags().Changed("qty") {
			v, _ := cmd.Flags().GetString("qty")
			p.EnteredQty = &v
		}
		if cmd.Flags().Changed("packing") {
			v, _ := cmd.Flags().GetString("packing")
			pc := model.PackingCondition(v)
			p.Packing = &pc
		}
		v, err := gateClient.PatchItem(cmd.Context(), line, &p)
		if err != nil {
			return err
		}
		printDraft(v)
		return nil
	},
}

var draftRemoveCmd = &cobra.Command{
	Use:     "rm <line>",
	Aliases: []string{"remove"},
	Short:   "Remove a manual line",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid line %q", args[0])
		}
		v, err := gateClient.RemoveItem(cmd.Context(), line)
		if err != nil {
			return err
		}
		printDraft(v)
		return nil
	},
}

var draftValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the open draft without saving it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := gateClient.Validate(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Draft is valid")
		return nil
	},
}

var draftSubmitCmd = &cobra.Command{
	Use:     "submit",
	Aliases: []string{"save"},
	Short:   "Save the open draft to the system of record",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := gateClient.Submit(cmd.Context())
		if err != nil {
			return err
		}
		printResult("Saved", res)
		return nil
	},
}

var draftDiscardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Throw the open draft away",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := gateClient.DiscardDraft(cmd.Context()); err != nil {
			return err
		}
		fmt.Println(ui.RenderMuted("Draft discarded"))
		return nil
	},
}

func init() {
	draftNewCmd.Flags().String("plant", "", "plant (default: the session's plant)")
	draftNewCmd.Flags().Int("rows", 0, "blank manual lines to start with")

	draftHeaderCmd.Flags().String("vehicle", "", "vehicle number")
	draftHeaderCmd.Flags().String("driver", "", "driver name")
	draftHeaderCmd.Flags().String("driver-phone", "", "driver phone number")
	draftHeaderCmd.Flags().String("transporter", "", "transporter")
	draftHeaderCmd.Flags().String("lr-number", "", "lorry receipt number")
	draftHeaderCmd.Flags().String("remarks", "", "remarks")
	draftHeaderCmd.Flags().String("party", "", "vendor or customer name (manual mode)")
	draftHeaderCmd.Flags().String("invoice", "", "vendor invoice number (PO inward)")
	draftHeaderCmd.Flags().String("invoice-date", "", "vendor invoice date, YYYY-MM-DD (PO inward)")
	draftHeaderCmd.Flags().String("challan", "", "challan number")
	draftHeaderCmd.Flags().String("purpose", "", "purpose (outward RGP/NRGP)")
	draftHeaderCmd.Flags().String("expected-return", "", "expected return date, YYYY-MM-DD (outward RGP)")

	draftItemsCmd.Flags().Int("page", 1, "page number")
	draftItemsCmd.Flags().Int("page-size", 10, "lines per page")

	draftSetCmd.Flags().String("material", "", "material code (manual mode)")
	draftSetCmd.Flags().String("qty", "", "entered quantity; empty clears it")
	draftSetCmd.Flags().String("packing", "", "packing condition: GOOD, BAD or N/A")

	draftCmd.AddCommand(draftNewCmd)
	draftCmd.AddCommand(draftShowCmd)
	draftCmd.AddCommand(draftHeaderCmd)
	draftCmd.AddCommand(draftFetchCmd)
	draftCmd.AddCommand(draftManualCmd)
	draftCmd.AddCommand(draftItemsCmd)
	draftCmd.AddCommand(draftAddCmd)
	draftCmd.AddCommand(draftSetCmd)
	draftCmd.AddCommand(draftRemoveCmd)
	draftCmd.AddCommand(draftValidateCmd)
	draftCmd.AddCommand(draftSubmitCmd)
	draftCmd.AddCommand(draftDiscardCmd)
}
