package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/robert-malhotra/go-dap4/dap4"
	"github.com/robert-malhotra/go-dap4/dsp/memdsp"
	"github.com/robert-malhotra/go-dap4/dsp/ncdsp"
	"github.com/robert-malhotra/go-dap4/dsp/nc4dsp"
	"github.com/robert-malhotra/go-dap4/internal/config"
)

// registry builds a registry holding the configured backends in order.
// Sessions it creates use the configured checksum settings and logger.
func (a *app) registry() (*dap4.Registry, error) {
	entry := logrus.NewEntry(a.log)
	reg := dap4.NewRegistry(
		[]dap4.Option{
			dap4.WithChecksumMode(a.cfg.ChecksumMode()),
			dap4.WithChecksumAlgorithm(a.cfg.ChecksumAlgorithm()),
			dap4.WithLogger(entry),
		},
		dap4.WithRegistryLogger(entry),
	)
	for _, name := range a.cfg.Backends {
		switch name {
		case config.BackendMem:
			c := memdsp.NewCatalog()
			if err := memdsp.LoadFiles(c, a.cfg.Fixtures...); err != nil {
				return nil, fmt.Errorf("loading fixtures: %w", err)
			}
			memdsp.Register(reg, c, dap4.Last)
		case config.BackendNetCDF:
			ncdsp.Register(reg, dap4.Last)
		case config.BackendNC4:
			nc4dsp.Register(reg, dap4.Last)
		default:
			return nil, fmt.Errorf("unknown backend %q", name)
		}
	}
	return reg, nil
}
