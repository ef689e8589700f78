package entity

// Status constants for Claim
const (
	StatusPending       Status = "pending"
	StatusInfoRequested Status = "info_requested"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
)

// Expense category constants. Category is open-ended: any other non-empty
// value is accepted and treated like CategoryOther by the detectors.
const (
	CategoryTravel         = "Travel"
	CategoryFuel           = "Fuel"
	CategoryMeals          = "Meals"
	CategoryAccommodation  = "Accommodation"
	CategoryEquipment      = "Equipment"
	CategoryTransportation = "Transportation"
	CategoryEntertainment  = "Entertainment"
	CategoryGifts          = "Gifts"
	CategoryCommunication  = "Communication"
	CategoryMaintenance    = "Maintenance"
	CategoryOther          = "Other"
)

// Alert codes produced by the detectors
const (
	AlertRoundAmount          = "round_amount"
	AlertHighValueAmount      = "high_value_amount"
	AlertRepeatedAmount       = "repeated_amount"
	AlertWeekendSubmission    = "weekend_submission"
	AlertOffHoursSubmission   = "off_hours_submission"
	AlertStaleExpense         = "stale_expense"
	AlertHighFrequency        = "high_frequency"
	AlertThresholdGaming      = "threshold_gaming"
	AlertHighRiskCategory     = "high_risk_category"
	AlertCategorySwitching    = "category_switching"
	AlertVagueDescription     = "vague_description"
	AlertDuplicateDescription = "duplicate_description"
	AlertMissingReceipt       = "missing_receipt"
)

// FlagFlaggedForReview is appended to a claim's fraud flags by a flag_for_review rule
const FlagFlaggedForReview = "flagged_for_review"

// History action constants
const (
	ActionSubmit         = "submit"
	ActionApprove        = "approve"
	ActionApprovePartial = "approve_partial"
	ActionReject         = "reject"
	ActionRequestInfo    = "request_info"
	ActionResubmit       = "resubmit"
	ActionAutoApprove    = "auto_approve"
	ActionAutoReject     = "auto_reject"
	ActionEscalate       = "escalate"
	ActionRescore        = "rescore"
	ActionFlag           = "flag_for_review"
)

// SystemActor is recorded as the actor of engine-driven transitions
const SystemActor = "system"
