/*
Package factory provides JSON to Go loan product conversion.

PURPOSE:
  Converts JSON product definitions into validated loan.LoanTerms
  snapshots. Loan programs are configuration, not code: origination
  requests and demo books define a product in JSON and the factory
  builds the terms, falling back to the servicing defaults for any
  convention the definition omits.

JSON SCHEMA:
  {
    "principal": "100000",
    "annualRate": "6",
    "termMonths": 360,
    "startDate": "2025-01-01",
    "frequency": "MONTHLY",
    "dayCount": "ACTUAL/365",
    "timing": "IN_ARREARS",
    "rounding": "HALF_UP",
    "balloonAmount": "20000",
    "balloonDueDate": "2055-01-01"
  }

KEY FEATURES:
  - Omitted conventions take the NewTerms defaults
  - Named conventions are validated by NewTerms, never silently coerced
  - Round-trips: ToJSON re-encodes terms for API responses

USAGE:
  f := factory.NewProductFactory()
  terms, err := f.ParseProduct(data)
  if err != nil { ... }
  l := &loan.Loan{ID: id, Terms: terms, CurrentBalance: terms.Principal, CurrentTerm: 1}

SEE ALSO:
  - loan/terms.go: LoanTerms, option defaults and validation
  - api/handlers.go: loan origination endpoint
  - api/scenarios.go: demo books defined as product JSON
*/
package factory

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/loan-engine/loan"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ProductJSON is the JSON definition of one loan product.
type ProductJSON struct {
	Principal      decimal.Decimal `json:"principal"`
	AnnualRate     decimal.Decimal `json:"annualRate"`
	TermMonths     int             `json:"termMonths"`
	StartDate      string          `json:"startDate"`
	Frequency      string          `json:"frequency,omitempty"`
	DayCount       string          `json:"dayCount,omitempty"`
	Timing         string          `json:"timing,omitempty"`
	Rounding       string          `json:"rounding,omitempty"`
	BalloonAmount  decimal.Decimal `json:"balloonAmount"`
	BalloonDueDate string          `json:"balloonDueDate,omitempty"`
}

// =============================================================================
// PRODUCT FACTORY
// =============================================================================

// ProductFactory converts JSON product definitions to loan terms.
type ProductFactory struct{}

// NewProductFactory creates a new product factory.
func NewProductFactory() *ProductFactory {
	return &ProductFactory{}
}

// ParseProduct parses a JSON document into validated loan terms.
func (f *ProductFactory) ParseProduct(data []byte) (loan.LoanTerms, error) {
	var pj ProductJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return loan.LoanTerms{}, &loan.FieldError{Field: "product", Code: "invalid_json", Message: err.Error()}
	}
	return f.FromJSON(pj)
}

// FromJSON converts ProductJSON to loan.LoanTerms. Conventions present
// in the definition are passed through for NewTerms to validate.
func (f *ProductFactory) FromJSON(pj ProductJSON) (loan.LoanTerms, error) {
	if pj.StartDate == "" {
		return loan.LoanTerms{}, &loan.FieldError{Field: "startDate", Code: "required", Message: "startDate is required"}
	}
	start, err := time.Parse(DateLayout, pj.StartDate)
	if err != nil {
		return loan.LoanTerms{}, &loan.FieldError{Field: "startDate", Code: "invalid_format", Message: "startDate must be " + DateLayout + " formatted"}
	}

	var opts []loan.TermOption
	if pj.Frequency != "" {
		opts = append(opts, loan.WithFrequency(loan.PaymentFrequency(pj.Frequency)))
	}
	if pj.DayCount != "" {
		opts = append(opts, loan.WithDayCount(loan.DayCount(pj.DayCount)))
	}
	if pj.Timing != "" {
		opts = append(opts, loan.WithTiming(loan.AccrualTiming(pj.Timing)))
	}
	if pj.Rounding != "" {
		opts = append(opts, loan.WithRounding(loan.RoundingMethod(pj.Rounding)))
	}
	if pj.BalloonAmount.IsPositive() {
		if pj.BalloonDueDate == "" {
			return loan.LoanTerms{}, &loan.FieldError{Field: "balloonDueDate", Code: "required", Message: "balloonDueDate is required when balloonAmount is set"}
		}
		due, err := time.Parse(DateLayout, pj.BalloonDueDate)
		if err != nil {
			return loan.LoanTerms{}, &loan.FieldError{Field: "balloonDueDate", Code: "invalid_format", Message: "balloonDueDate must be " + DateLayout + " formatted"}
		}
		opts = append(opts, loan.WithBalloon(pj.BalloonAmount, due))
	}

	return loan.NewTerms(pj.Principal, pj.AnnualRate, pj.TermMonths, start, opts...)
}

// ToJSON converts terms back to their wire representation.
func (f *ProductFactory) ToJSON(terms loan.LoanTerms) ProductJSON {
	pj := ProductJSON{
		Principal:  terms.Principal,
		AnnualRate: terms.AnnualRate,
		TermMonths: terms.TermMonths,
		StartDate:  terms.StartDate.Format(DateLayout),
		Frequency:  string(terms.Frequency),
		DayCount:   string(terms.DayCount),
		Timing:     string(terms.Timing),
		Rounding:   string(terms.Rounding),
	}
	if terms.HasBalloon() {
		pj.BalloonAmount = terms.BalloonAmount
		pj.BalloonDueDate = terms.BalloonDueDate.Format(DateLayout)
	}
	return pj
}
