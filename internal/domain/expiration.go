package domain

import "time"

// ExpirationStage is the derived contract-expiration stage of a principal.
// For a fixed end date and an advancing clock, stages only move forward;
// only an end-date change in the directory may regress a stage.
type ExpirationStage string

const (
	StageNoEndDate    ExpirationStage = "NoEndDate"
	StageActive       ExpirationStage = "Active"
	StageExpiringSoon ExpirationStage = "ExpiringSoon"
	StageFinalNotice  ExpirationStage = "FinalNotice"
	StageExpired      ExpirationStage = "Expired"
)

// stageOrder positions stages on the forward-only timeline.
var stageOrder = map[ExpirationStage]int{
	StageNoEndDate:    0,
	StageActive:       1,
	StageExpiringSoon: 2,
	StageFinalNotice:  3,
	StageExpired:      4,
}

// Before reports whether s precedes other on the expiration timeline.
func (s ExpirationStage) Before(other ExpirationStage) bool {
	return stageOrder[s] < stageOrder[other]
}

// ExpirationRecord is the per-principal result of one expiration pass.
type ExpirationRecord struct {
	PrincipalID string
	EndDate     *time.Time // nil when the attribute is absent or unparsable
	Stage       ExpirationStage
}
