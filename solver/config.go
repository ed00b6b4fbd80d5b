package solver

import (
	"fmt"

	"gopkg.in/gcfg.v1"
)

// configFile mirrors the on-disk INI layout:
//
//	[multigrid]
//	smoother = gsrb
//	n-cycle-down = 2
//	n-cycle-up = 2
//	max-coarse-cycles = 500
//	residual-coarse-rel = 1e-8
//	residual-coarse-abs = 1e-14
//	use-direct-coarse = true
//
// String pointers distinguish "unset" from zero so that absent keys keep
// their defaults.
type configFile struct {
	Multigrid struct {
		Smoother          *string `gcfg:"smoother"`
		NCycleDown        *int    `gcfg:"n-cycle-down"`
		NCycleUp          *int    `gcfg:"n-cycle-up"`
		MaxCoarseCycles   *int    `gcfg:"max-coarse-cycles"`
		ResidualCoarseRel *string `gcfg:"residual-coarse-rel"`
		ResidualCoarseAbs *string `gcfg:"residual-coarse-abs"`
		UseDirectCoarse   *bool   `gcfg:"use-direct-coarse"`
	}
}

// LoadSettings reads a gcfg-style config file, overlaying its [multigrid]
// section onto DefaultSettings.
func LoadSettings(path string) (Settings, error) {
	set := DefaultSettings()
	var cfg configFile
	if err := gcfg.ReadFileInto(&cfg, path); err != nil {
		return set, fmt.Errorf("solver: reading config %s: %w", path, err)
	}
	mg := cfg.Multigrid

	if mg.Smoother != nil {
		switch *mg.Smoother {
		case "gsrb":
			set.Smoother = SmootherGSRB
		case "gs":
			set.Smoother = SmootherGS
		case "jacobi":
			set.Smoother = SmootherJacobi
		default:
			return set, fmt.Errorf("solver: unknown smoother %q", *mg.Smoother)
		}
	}
	if mg.NCycleDown != nil {
		set.NCycleDown = *mg.NCycleDown
	}
	if mg.NCycleUp != nil {
		set.NCycleUp = *mg.NCycleUp
	}
	if mg.MaxCoarseCycles != nil {
		set.MaxCoarseCycles = *mg.MaxCoarseCycles
	}
	if mg.ResidualCoarseRel != nil {
		if _, err := fmt.Sscanf(*mg.ResidualCoarseRel, "%g", &set.ResidualCoarseRel); err != nil {
			return set, fmt.Errorf("solver: bad residual-coarse-rel %q: %w", *mg.ResidualCoarseRel, err)
		}
	}
	if mg.ResidualCoarseAbs != nil {
		if _, err := fmt.Sscanf(*mg.ResidualCoarseAbs, "%g", &set.ResidualCoarseAbs); err != nil {
			return set, fmt.Errorf("solver: bad residual-coarse-abs %q: %w", *mg.ResidualCoarseAbs, err)
		}
	}
	if mg.UseDirectCoarse != nil {
		set.UseDirectCoarse = *mg.UseDirectCoarse
	}
	return set, nil
}
