package cmd

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/robert-malhotra/go-dap4/dap4/dmr"
)

func newLsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "ls <location>",
		Short:   "List the variables of a dataset",
		Example: `dap4dump ls data/grid.nc`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			s, err := reg.Open(args[0], nil)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.Close(); err == nil {
					err = cerr
				}
			}()
			ds, err := s.DMR()
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"VARIABLE", "SORT", "TYPE", "SHAPE"})
			for _, v := range ds.TopVariables() {
				listVariable(table, v)
			}
			table.Render()
			return nil
		},
	}
}

// listVariable adds a row for v and for each of its fields.
func listVariable(table *tablewriter.Table, v *dmr.Variable) {
	typ := "-"
	if !v.IsCompound() {
		typ = v.Type().String()
	}
	table.Append([]string{v.FQN(), v.Sort().String(), typ, shapeString(v)})
	for _, f := range v.Fields() {
		listVariable(table, f)
	}
}

func shapeString(v *dmr.Variable) string {
	if v.Rank() == 0 {
		return "scalar"
	}
	var b strings.Builder
	for _, d := range v.Dimensions() {
		if d.Shared() {
			fmt.Fprintf(&b, "[%s=%d]", d.Name(), d.Size())
		} else {
			fmt.Fprintf(&b, "[%d]", d.Size())
		}
	}
	return b.String()
}
