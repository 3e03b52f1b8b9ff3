package rules

import "github.com/DarsanV/HackaThrone-team91/internal/domain"

// DefaultSignals is the built-in fraud policy used when no policy file is
// configured. Weights sum to 1.0.
func DefaultSignals() []domain.SignalConfig {
	return []domain.SignalConfig{
		{
			Name:       "evidence_mismatch",
			Label:      "Detector does not confirm the reported violation",
			Expression: `evidence_count == 0 ? 1.0 : (detected ? 1.0 - detection_confidence : 0.0)`,
			Weight:     0.30,
			Threshold:  0.6,
		},
		{
			Name:       "plate_unreadable",
			Label:      "Number plate could not be read from the evidence",
			Expression: `!detected ? 0.0 : (plate_text == "" ? 1.0 : 1.0 - plate_confidence)`,
			Weight:     0.15,
			Threshold:  0.5,
		},
		{
			Name:       "plate_mismatch",
			Label:      "Reported plate does not match the evidence",
			Expression: `!plate_format(reported_plate) || (plate_text != "" && plate_text != reported_plate)`,
			Weight:     0.15,
			Threshold:  0.5,
		},
		{
			Name:  "headcount_inconsistent",
			Label: "Rider count inconsistent with the reported violation",
			Expression: `detected && ((violation_type == "triple_riding" && person_count < 3) ||
				(violation_type == "no_helmet" && person_count == 0))`,
			Weight:    0.10,
			Threshold: 0.5,
		},
		{
			Name:  "location_inconsistent",
			Label: "Evidence geotag is far from the reported location",
			Expression: `location_distance_m <= 200.0 ? 0.0 :
				(location_distance_m >= 2000.0 ? 1.0 : (location_distance_m - 200.0) / 1800.0)`,
			Weight:    0.10,
			Threshold: 0.5,
		},
		{
			Name:  "timestamp_inconsistent",
			Label: "Evidence was captured long before submission",
			Expression: `timestamp_skew_s <= 3600.0 ? 0.0 :
				(timestamp_skew_s >= 86400.0 ? 1.0 : (timestamp_skew_s - 3600.0) / 82800.0)`,
			Weight:    0.05,
			Threshold: 0.5,
		},
		{
			Name:       "reporter_velocity",
			Label:      "Unusually many reports from this reporter in 24h",
			Expression: `reporter_reports_24h >= 20 ? 1.0 : double(reporter_reports_24h) / 20.0`,
			Weight:     0.05,
			Threshold:  0.5,
		},
		{
			Name:       "reporter_rejections",
			Label:      "Reporter has a high rejection rate",
			Expression: `reporter_rejection_ratio`,
			Weight:     0.10,
			Threshold:  0.5,
		},
	}
}
