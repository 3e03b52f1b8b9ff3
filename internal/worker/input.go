package worker

import (
	"math"

	"github.com/DarsanV/HackaThrone-team91/internal/detection"
	"github.com/DarsanV/HackaThrone-team91/internal/domain"
	"github.com/DarsanV/HackaThrone-team91/internal/history"
	"github.com/DarsanV/HackaThrone-team91/internal/repository"
)

// BuildInput assembles the signal inputs for a report. det and snap may
// be nil; the matching inputs then stay at their neutral zero values.
func BuildInput(rep *domain.ViolationReport, det *detection.Result, snap *history.Snapshot) domain.RiskInput {
	in := domain.RiskInput{
		ViolationType: rep.ViolationType,
		ReportedPlate: rep.Vehicle.NumberPlate,
		EvidenceCount: len(rep.Evidence),
	}

	if det != nil {
		in.Detected = true
		in.DetectionConfidence = det.ConfidenceFor(rep.ViolationType)
		in.PersonCount = det.PersonCount
		if det.Plate != nil {
			in.PlateText = det.Plate.Text
			in.PlateConfidence = det.Plate.Confidence
		}
		if det.Geotag != nil {
			in.LocationDistanceMeters = repository.HaversineMeters(
				rep.Location.Latitude, rep.Location.Longitude,
				det.Geotag.Latitude, det.Geotag.Longitude,
			)
		}
	}

	// Capture time: detector EXIF first, then the furthest client timestamp.
	if det != nil && det.CapturedAt != nil {
		in.TimestampSkewSeconds = rep.CreatedAt.Sub(*det.CapturedAt).Seconds()
	} else {
		for _, ev := range rep.Evidence {
			if ev.CapturedAt == nil {
				continue
			}
			skew := rep.CreatedAt.Sub(*ev.CapturedAt).Seconds()
			if math.Abs(skew) > math.Abs(in.TimestampSkewSeconds) {
				in.TimestampSkewSeconds = skew
			}
		}
	}

	if snap != nil {
		in.ReporterReports24h = snap.Reports24h
		in.ReporterRejectionRatio = snap.RejectionRatio
	}
	return in
}
