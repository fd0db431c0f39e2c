package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// PlanType is a membership tier.
type PlanType string

const (
    PlanIndividual PlanType = "Individual"
    PlanDual       PlanType = "Dual"
    PlanFamily     PlanType = "Family"
    PlanPatron     PlanType = "Patron"
)

// PlanPrices is the fixed annual fee per plan.  Signup checkouts are
// validated against it before anything is written.
var PlanPrices = map[PlanType]decimal.Decimal{
    PlanIndividual: decimal.RequireFromString("75.00"),
    PlanDual:       decimal.RequireFromString("120.00"),
    PlanFamily:     decimal.RequireFromString("150.00"),
    PlanPatron:     decimal.RequireFromString("300.00"),
}

// Membership ties a user to a plan for a date range.  The discount it
// grants is looked up from `membership_benefits` by plan type.
type Membership struct {
    ID             uint64    // memberships.id
    UserID         uint64    // memberships.user_id
    PlanType       PlanType  // memberships.membership_type
    StartDate      time.Time // memberships.start_date
    ExpirationDate time.Time // memberships.expiration_date
    IsActive       bool      // memberships.is_active
}
