package cases

import "github.com/nvmetools/nvmetest/registry"

// BuiltinSuites returns the suite definitions shipped with the tool. A YAML
// suite file can add more.
func BuiltinSuites() []registry.Definition {
	return []registry.Definition{
		{
			ID:          "health",
			Title:       "Drive Health Check",
			Description: "Verify the drive is healthy: info, admin commands, SMART under load, short bursts.",
			AbortOnFail: true,
			Cases: []string{
				"suite_start_info",
				"admin_commands",
				"background_smart",
				"short_burst_performance",
				"suite_end_info",
			},
		},
		{
			ID:          "quick",
			Title:       "Quick Drive Check",
			Description: "Read drive information twice and verify health and parameter movement.",
			Cases: []string{
				"suite_start_info",
				"suite_end_info",
			},
		},
		{
			ID:          "performance",
			Title:       "Short Performance Check",
			Description: "Measure short burst bandwidth with health checks around it.",
			Cases: []string{
				"suite_start_info",
				"short_burst_performance",
				"suite_end_info",
			},
		},
	}
}
