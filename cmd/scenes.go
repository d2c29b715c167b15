package main

import (
	"strings"

	"github.com/forest-guardian/ricemap/internal/catalog"
	"github.com/forest-guardian/ricemap/internal/config"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var scenesCmd = &cobra.Command{
	Use:   "scenes <data_dir> <orbit> <start YYYYMMDD> <end YYYYMMDD>",
	Short: "List the scenes a run would use, as CSV",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := catalog.ParseDate(args[2])
		if err != nil {
			return eris.Wrap(config.ErrInvalid, err.Error())
		}
		end, err := catalog.ParseDate(args[3])
		if err != nil {
			return eris.Wrap(config.ErrInvalid, err.Error())
		}
		scenes, err := catalog.Discover(args[0], catalog.Filter{
			Orbit:     args[1],
			Direction: strings.ToUpper(direction),
			Start:     start,
			End:       end,
		}, catalog.Options{
			Polarization:    cfg.Catalog.Polarization,
			SatellitePrefix: cfg.Catalog.SatellitePrefix,
			Extension:       cfg.Catalog.Extension,
			FinalizedMarker: cfg.Catalog.FinalizedMarker,
			Selection:       catalog.Selection(strings.ToLower(cfg.Catalog.Selection)),
		})
		if err != nil {
			return err
		}
		return catalog.WriteCSV(cmd.OutOrStdout(), scenes)
	},
}
