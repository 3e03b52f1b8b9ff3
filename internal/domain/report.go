package domain

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ViolationType is the closed set of reportable traffic violations.
type ViolationType string

const (
	ViolationNoHelmet     ViolationType = "no_helmet"
	ViolationWrongSide    ViolationType = "wrong_side"
	ViolationSignalJump   ViolationType = "signal_jump"
	ViolationOverspeeding ViolationType = "overspeeding"
	ViolationDrunkDriving ViolationType = "drunk_driving"
	ViolationTripleRiding ViolationType = "triple_riding"
	ViolationMobileUse    ViolationType = "mobile_use"
	ViolationNoLicense    ViolationType = "no_license"
	ViolationOther        ViolationType = "other"
)

// ViolationTypes lists every valid violation type in display order.
var ViolationTypes = []ViolationType{
	ViolationNoHelmet,
	ViolationWrongSide,
	ViolationSignalJump,
	ViolationOverspeeding,
	ViolationDrunkDriving,
	ViolationTripleRiding,
	ViolationMobileUse,
	ViolationNoLicense,
	ViolationOther,
}

// Valid reports whether t belongs to the closed enumeration.
func (t ViolationType) Valid() bool {
	for _, v := range ViolationTypes {
		if t == v {
			return true
		}
	}
	return false
}

var titleCaser = cases.Title(language.English)

// Label renders the type for humans, e.g. "No Helmet".
func (t ViolationType) Label() string {
	return titleCaser.String(strings.ReplaceAll(string(t), "_", " "))
}

// ReportStatus is the primary lifecycle state of a report.
type ReportStatus string

const (
	StatusPending       ReportStatus = "pending"
	StatusVerified      ReportStatus = "verified"
	StatusRejected      ReportStatus = "rejected"
	StatusChallanIssued ReportStatus = "challan_issued"
)

// ReportStatuses lists every report status.
var ReportStatuses = []ReportStatus{StatusPending, StatusVerified, StatusRejected, StatusChallanIssued}

// Valid reports whether s is a known status.
func (s ReportStatus) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected, StatusChallanIssued:
		return true
	}
	return false
}

// DefaultVehicleType is applied when intake omits the vehicle type.
const DefaultVehicleType = "motorcycle"

// ChallanDuePeriod is the time a violator has to pay an issued challan.
const ChallanDuePeriod = 30 * 24 * time.Hour

// Location is where the incident happened. Immutable once set.
type Location struct {
	Longitude float64 `json:"longitude" bson:"longitude"`
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Address   string  `json:"address" bson:"address"`
	Landmark  string  `json:"landmark,omitempty" bson:"landmark,omitempty"`
}

// ValidCoordinates reports whether the pair is a real (lon, lat).
func (l Location) ValidCoordinates() bool {
	return l.Longitude >= -180 && l.Longitude <= 180 &&
		l.Latitude >= -90 && l.Latitude <= 90
}

// Vehicle identifies the offending vehicle.
type Vehicle struct {
	NumberPlate string `json:"numberPlate" bson:"number_plate"`
	Type        string `json:"type,omitempty" bson:"type,omitempty"`
	Make        string `json:"make,omitempty" bson:"make,omitempty"`
	Model       string `json:"model,omitempty" bson:"model,omitempty"`
	Color       string `json:"color,omitempty" bson:"color,omitempty"`
}

// NormalizePlate uppercases a plate and strips surrounding whitespace.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

// platePattern is the Indian registration format, e.g. KA01AB1234.
var platePattern = regexp.MustCompile(`^[A-Z]{2}\d{2}[A-Z]{1,2}\d{4}$`)

// PlateFormatValid reports whether plate, once normalised and with inner
// spaces removed, looks like a registration number. Submission does not
// require it; the fraud signals do.
func PlateFormatValid(plate string) bool {
	return platePattern.MatchString(strings.ReplaceAll(NormalizePlate(plate), " ", ""))
}

// EvidenceKind distinguishes photos from frames pulled out of a video.
type EvidenceKind string

const (
	EvidencePhoto      EvidenceKind = "photo"
	EvidenceVideoFrame EvidenceKind = "video_frame"
)

// Evidence is a reference to stored media, never the bytes themselves.
type Evidence struct {
	Kind       EvidenceKind `json:"kind" bson:"kind"`
	Ref        string       `json:"ref" bson:"ref"`
	CapturedAt *time.Time   `json:"capturedAt,omitempty" bson:"captured_at,omitempty"`
}

// Verification records the officer who confirmed a report.
type Verification struct {
	OfficerID  string    `json:"officerId" bson:"officer_id"`
	Notes      string    `json:"notes,omitempty" bson:"notes,omitempty"`
	VerifiedAt time.Time `json:"verifiedAt" bson:"verified_at"`
}

// Rejection records why a report was turned down.
type Rejection struct {
	OfficerID  string    `json:"officerId" bson:"officer_id"`
	Reason     string    `json:"reason" bson:"reason"`
	RejectedAt time.Time `json:"rejectedAt" bson:"rejected_at"`
}

// Challan is the fine notice issued against a verified report.
type Challan struct {
	ChallanNumber string    `json:"challanNumber" bson:"challan_number"`
	FineAmount    int64     `json:"fineAmount" bson:"fine_amount"`
	OfficerID     string    `json:"officerId" bson:"officer_id"`
	IssuedAt      time.Time `json:"issuedAt" bson:"issued_at"`
	DueDate       time.Time `json:"dueDate" bson:"due_date"`
}

// Reward is the payout owed to a non-anonymous reporter.
type Reward struct {
	ReporterID string    `json:"reporterId" bson:"reporter_id"`
	Amount     int64     `json:"amount" bson:"amount"`
	CreditedAt time.Time `json:"creditedAt" bson:"credited_at"`
}

// ViolationReport is a citizen report and its lifecycle state.
type ViolationReport struct {
	ID              string          `json:"id" bson:"_id"`
	ViolationType   ViolationType   `json:"violationType" bson:"violation_type"`
	AdditionalTypes []ViolationType `json:"additionalTypes,omitempty" bson:"additional_types,omitempty"`
	Location        Location        `json:"location" bson:"location"`
	Vehicle         Vehicle         `json:"vehicle" bson:"vehicle"`
	Evidence        []Evidence      `json:"evidence,omitempty" bson:"evidence,omitempty"`
	Description     string          `json:"description,omitempty" bson:"description,omitempty"`
	ReporterID      string          `json:"reporterId,omitempty" bson:"reporter_id,omitempty"`
	IsAnonymous     bool            `json:"isAnonymous" bson:"is_anonymous"`

	Status       ReportStatus  `json:"status" bson:"status"`
	FraudRisk    *Assessment   `json:"fraudRisk,omitempty" bson:"fraud_risk,omitempty"`
	Verification *Verification `json:"verification,omitempty" bson:"verification,omitempty"`
	Rejection    *Rejection    `json:"rejection,omitempty" bson:"rejection,omitempty"`
	Challan      *Challan      `json:"challan,omitempty" bson:"challan,omitempty"`
	Reward       *Reward       `json:"reward,omitempty" bson:"reward,omitempty"`

	Version   int64     `json:"version" bson:"version"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// Anonymous reports whether the report is ineligible for rewards.
func (r *ViolationReport) Anonymous() bool {
	return r.IsAnonymous || strings.TrimSpace(r.ReporterID) == ""
}

// Types returns the primary type followed by any additional types.
func (r *ViolationReport) Types() []ViolationType {
	out := make([]ViolationType, 0, 1+len(r.AdditionalTypes))
	out = append(out, r.ViolationType)
	for _, t := range r.AdditionalTypes {
		if t != r.ViolationType {
			out = append(out, t)
		}
	}
	return out
}

// Clone returns a deep copy so callers can mutate without sharing state.
func (r *ViolationReport) Clone() *ViolationReport {
	if r == nil {
		return nil
	}
	c := *r
	if r.AdditionalTypes != nil {
		c.AdditionalTypes = append([]ViolationType(nil), r.AdditionalTypes...)
	}
	if r.Evidence != nil {
		c.Evidence = append([]Evidence(nil), r.Evidence...)
	}
	if r.FraudRisk != nil {
		fr := *r.FraudRisk
		fr.FraudIndicators = append([]string(nil), r.FraudRisk.FraudIndicators...)
		fr.Signals = append([]SignalOutcome(nil), r.FraudRisk.Signals...)
		c.FraudRisk = &fr
	}
	if r.Verification != nil {
		v := *r.Verification
		c.Verification = &v
	}
	if r.Rejection != nil {
		v := *r.Rejection
		c.Rejection = &v
	}
	if r.Challan != nil {
		v := *r.Challan
		c.Challan = &v
	}
	if r.Reward != nil {
		v := *r.Reward
		c.Reward = &v
	}
	return &c
}

// SubmitRequest is the intake payload accepted by the lifecycle engine.
type SubmitRequest struct {
	ViolationType   ViolationType   `json:"violationType"`
	AdditionalTypes []ViolationType `json:"additionalTypes,omitempty"`
	Location        Location        `json:"location"`
	Vehicle         Vehicle         `json:"vehicle"`
	Evidence        []Evidence      `json:"evidence,omitempty"`
	Description     string          `json:"description,omitempty"`
	ReporterID      string          `json:"reporterId,omitempty"`
	IsAnonymous     bool            `json:"isAnonymous"`
}

// IssueChallanRequest carries the officer's challan details.
type IssueChallanRequest struct {
	ChallanNumber string `json:"challanNumber"`
	FineAmount    int64  `json:"fineAmount"`
	OfficerID     string `json:"officerId"`
}
