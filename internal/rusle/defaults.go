package rusle

// defaultTree is the version "2024.1" defaults for the RUSLE model as
// used for the Tajikistan erosion maps. Values use JSON shapes
// (float64, string, bool, []any, map[string]any) so user overrides
// decoded from request bodies compare cleanly.
var defaultTree = map[string]any{
	"r_factor": map[string]any{
		"coefficient":           0.562,
		"intercept":             -8.12,
		"long_term_start_year":  1994.0,
		"long_term_end_year":    2024.0,
		"use_long_term_default": true,
	},
	"k_factor": map[string]any{
		"sand_fraction_multiplier":  0.2,
		"soc_to_organic_multiplier": 0.01724,
		"base_constant":             27.66,
		"m_exponent":                1.14,
		"area_factor":               1e-8,
		"organic_matter_subtract":   12.0,
		"structure_coefficient":     0.0043,
		"structure_baseline":        2.0,
		"permeability_coefficient":  0.0033,
		"permeability_baseline":     3.0,
	},
	"ls_factor": map[string]any{
		"grid_size":             1000.0,
		"flow_length_reference": 22.13,
		"flow_exponent":         0.4,
		"slope_normalisation":   0.0896,
		"slope_exponent":        1.3,
		"minimum_slope_radians": 0.0001,
	},
	"c_factor": map[string]any{
		// MODIS IGBP land cover classes mapped to C-factor coefficients.
		"class_map": map[string]any{
			"1": 0.05, "2": 0.05, "3": 0.05, "4": 0.05, "5": 0.05,
			"6": 0.1, "7": 0.1, "8": 0.05, "9": 0.1, "10": 0.1,
			"11": 0.0, "12": 0.15, "13": 0.01, "14": 0.15, "15": 0.0,
			"16": 0.4, "17": 0.0,
		},
		"default_value": 0.0,
	},
	"p_factor": map[string]any{
		"default_value":  1.0,
		"cropland_class": 12.0,
		// Breakpoints evaluated in ascending order; the nil max entry is
		// the fallback.
		"breakpoints": []any{
			map[string]any{"max_slope": 5.0, "value": 0.10},
			map[string]any{"max_slope": 10.0, "value": 0.12},
			map[string]any{"max_slope": 20.0, "value": 0.14},
			map[string]any{"max_slope": 30.0, "value": 0.19},
			map[string]any{"max_slope": 50.0, "value": 0.25},
			map[string]any{"max_slope": 100.0, "value": 0.33},
			map[string]any{"max_slope": nil, "value": 0.33},
		},
	},
	"soil_loss": map[string]any{
		"clamp_min": 0.0,
		"clamp_max": 200.0,
	},
	"erosion_classes": []any{
		map[string]any{"key": "very_low", "label": "Very Low", "min": 0.0, "max": 5.0},
		map[string]any{"key": "low", "label": "Low", "min": 5.0, "max": 15.0},
		map[string]any{"key": "moderate", "label": "Moderate", "min": 15.0, "max": 30.0},
		map[string]any{"key": "severe", "label": "Severe", "min": 30.0, "max": 50.0},
		map[string]any{"key": "excessive", "label": "Excessive", "min": 50.0, "max": nil},
	},
	"rainfall_statistics": map[string]any{
		"mean_scale": 5000.0,
		"cv_scale":   5000.0,
		"trend_interpretation": []any{
			map[string]any{"min": 2.0, "label": "Significant increasing trend"},
			map[string]any{"min": 0.5, "label": "Moderate increasing trend"},
			map[string]any{"min": -0.5, "label": "Stable/No significant trend"},
			map[string]any{"min": -2.0, "label": "Moderate decreasing trend"},
			map[string]any{"min": nil, "label": "Significant decreasing trend"},
		},
		"cv_interpretation": []any{
			map[string]any{"max": 10.0, "label": "Very low variability"},
			map[string]any{"max": 20.0, "label": "Low variability"},
			map[string]any{"max": 30.0, "label": "Moderate variability"},
			map[string]any{"max": 40.0, "label": "High variability"},
			map[string]any{"max": nil, "label": "Very high variability"},
		},
	},
	"logging": map[string]any{
		"include_config_snapshot": true,
	},
}
