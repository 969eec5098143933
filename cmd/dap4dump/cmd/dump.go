package cmd

import (
	"bytes"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/go-dap4/dap4"
	"github.com/robert-malhotra/go-dap4/internal/printer"
)

func newDumpCommand(a *app) *cobra.Command {
	var dataOnly bool
	var columns int
	c := &cobra.Command{
		Use:   "dump <location>...",
		Short: "Print the DMR, data and checksums of datasets",
		Example: `dap4dump dump --fixtures grid.yaml mem://grid1
dap4dump dump --checksum all data/*.nc`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			return a.dump(cmd, reg, args, dataOnly, columns)
		},
	}
	c.Flags().BoolVar(&dataOnly, "data-only", false, "skip the DMR document")
	c.Flags().IntVar(&columns, "columns", printer.DefaultColumns, "values per output line")
	return c
}

// dump prints every location. Locations are read concurrently, up to the
// configured limit, and printed in argument order. A failing location does
// not stop the others; all failures are returned together.
func (a *app) dump(cmd *cobra.Command, reg *dap4.Registry, locations []string, dataOnly bool, columns int) error {
	outs := make([]bytes.Buffer, len(locations))
	errs := make([]error, len(locations))

	var eg errgroup.Group
	eg.SetLimit(a.cfg.Concurrency)
	for i, loc := range locations {
		eg.Go(func() error {
			errs[i] = dumpLocation(&outs[i], reg, loc, dataOnly, columns)
			if errs[i] != nil {
				a.log.WithFields(logrus.Fields{"location": loc}).Debugf("dump failed: %v", errs[i])
			}
			return nil
		})
	}
	_ = eg.Wait()

	var result error
	w := cmd.OutOrStdout()
	for i := range locations {
		if len(locations) > 1 {
			fmt.Fprintf(w, "# %s\n", locations[i])
		}
		if _, err := outs[i].WriteTo(w); err != nil {
			return err
		}
		if errs[i] != nil {
			result = multierror.Append(result, errs[i])
		}
	}
	return result
}

func dumpLocation(buf *bytes.Buffer, reg *dap4.Registry, location string, dataOnly bool, columns int) (err error) {
	s, err := reg.Open(location, nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	dd, err := dap4.NewDataDataset(s)
	if err != nil {
		return err
	}
	p := printer.New(buf, printer.WithColumns(columns))
	if dataOnly {
		return p.PrintData(dd)
	}
	return p.Print(dd)
}
