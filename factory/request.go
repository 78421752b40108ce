/*
Package factory provides JSON to Go modification conversion.

PURPOSE:
  Converts JSON modification submissions into modification.Request values.
  The wire format carries a type discriminator plus a parameters object;
  this package picks the matching parameter struct for the discriminator
  and decodes into it, so handlers never switch on type themselves.

JSON SCHEMA:
  {
    "type": "TEMPORARY_PAYMENT_REDUCTION",
    "effectiveDate": "2026-03-01",
    "reason": "hardship plan 4412",
    "createdBy": "servicer-17",
    "parameters": {
      "reducedPayment": "850.00",
      "numberOfTerms": 6,
      "interestHandling": "CAPITALIZE"
    }
  }

KEY FEATURES:
  - One decoder per modification type, checked complete at init
  - Unknown discriminators surface as UnknownTypeError, never a crash
  - Round-trips: ToJSON re-encodes a request for API responses

USAGE:
  f := factory.NewRequestFactory()
  req, err := f.ParseRequest(loanID, body)
  if err != nil { ... }
  result, err := calc.CalculateImpact(terms, params, req)

SEE ALSO:
  - modification/types.go: the parameter structs decoded into
  - modification/catalog.go: field-level schema served to clients
  - api/handlers.go: the HTTP callers
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/meridian/loan-engine/loan"
	"github.com/meridian/loan-engine/modification"
)

// DateLayout is the wire format for effective dates.
const DateLayout = "2006-01-02"

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RequestJSON is the JSON representation of one modification submission.
type RequestJSON struct {
	ID            string          `json:"id,omitempty"`
	LoanID        string          `json:"loanId,omitempty"`
	Type          string          `json:"type"`
	EffectiveDate string          `json:"effectiveDate"`
	Reason        string          `json:"reason,omitempty"`
	CreatedBy     string          `json:"createdBy,omitempty"`
	Status        string          `json:"status,omitempty"`
	Parameters    json.RawMessage `json:"parameters"`
}

// =============================================================================
// PARAMETER PROTOTYPES - discriminator to struct mapping
// =============================================================================

// prototypes maps each wire discriminator to a fresh parameter struct.
var prototypes = map[modification.Type]func() modification.Parameters{
	modification.TypeRateChange:                func() modification.Parameters { return &modification.RateChange{} },
	modification.TypeTermExtension:             func() modification.Parameters { return &modification.TermExtension{} },
	modification.TypeTemporaryPaymentReduction: func() modification.Parameters { return &modification.TemporaryPaymentReduction{} },
	modification.TypePermanentPaymentReduction: func() modification.Parameters { return &modification.PermanentPaymentReduction{} },
	modification.TypePrincipalReduction:        func() modification.Parameters { return &modification.PrincipalReduction{} },
	modification.TypeBalloonAssignment:         func() modification.Parameters { return &modification.BalloonAssignment{} },
	modification.TypeBalloonRemoval:            func() modification.Parameters { return &modification.BalloonRemoval{} },
	modification.TypeForbearance:               func() modification.Parameters { return &modification.Forbearance{} },
	modification.TypeDeferment:                 func() modification.Parameters { return &modification.Deferment{} },
	modification.TypeReamortization:            func() modification.Parameters { return &modification.Reamortization{} },
}

func init() {
	for _, t := range modification.Types() {
		if _, ok := prototypes[t]; !ok {
			panic(fmt.Sprintf("factory: no parameter prototype for %s", t))
		}
	}
}

// =============================================================================
// REQUEST FACTORY
// =============================================================================

// RequestFactory converts JSON submissions to modification requests.
type RequestFactory struct{}

// NewRequestFactory creates a new request factory.
func NewRequestFactory() *RequestFactory {
	return &RequestFactory{}
}

// ParseRequest parses a JSON document into a request for the given loan.
func (f *RequestFactory) ParseRequest(loanID loan.LoanID, data []byte) (*modification.Request, error) {
	var rj RequestJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return nil, &loan.FieldError{Field: "body", Code: "invalid_json", Message: err.Error()}
	}
	return f.FromJSON(loanID, rj)
}

// FromJSON converts RequestJSON to a modification.Request.
// The type discriminator selects the parameter struct; unknown
// discriminators return UnknownTypeError.
func (f *RequestFactory) FromJSON(loanID loan.LoanID, rj RequestJSON) (*modification.Request, error) {
	params, err := ParamsFromJSON(modification.Type(rj.Type), rj.Parameters)
	if err != nil {
		return nil, err
	}

	effective, err := parseDate(rj.EffectiveDate)
	if err != nil {
		return nil, err
	}

	if rj.LoanID != "" {
		loanID = loan.LoanID(rj.LoanID)
	}
	req := modification.NewRequest(loanID, params, effective, rj.Reason, rj.CreatedBy)
	if rj.ID != "" {
		req.ID = rj.ID
	}
	return req, nil
}

// ParamsFromJSON decodes a raw parameters object for the given type.
// An absent parameters object yields the zero parameter struct; the
// validator reports the missing fields with their names.
func ParamsFromJSON(t modification.Type, raw json.RawMessage) (modification.Parameters, error) {
	proto, ok := prototypes[t]
	if !ok {
		return nil, &loan.UnknownTypeError{Type: string(t)}
	}

	params := proto()
	if len(raw) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(raw, params); err != nil {
		return nil, &loan.FieldError{
			Field:   "parameters",
			Code:    "invalid_json",
			Message: fmt.Sprintf("failed to parse %s parameters: %v", t, err),
		}
	}
	return params, nil
}

// ToJSON converts a request back to its wire representation.
func (f *RequestFactory) ToJSON(req *modification.Request) (RequestJSON, error) {
	raw, err := json.Marshal(req.Params)
	if err != nil {
		return RequestJSON{}, fmt.Errorf("failed to encode %s parameters: %w", req.Type, err)
	}
	return RequestJSON{
		ID:            req.ID,
		LoanID:        string(req.LoanID),
		Type:          string(req.Type),
		EffectiveDate: req.EffectiveDate.Format(DateLayout),
		Reason:        req.Reason,
		CreatedBy:     req.CreatedBy,
		Status:        string(req.Status),
		Parameters:    raw,
	}, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, &loan.FieldError{Field: "effectiveDate", Code: "required", Message: "effectiveDate is required"}
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &loan.FieldError{
			Field:   "effectiveDate",
			Code:    "invalid_format",
			Message: fmt.Sprintf("effectiveDate must be %s formatted", DateLayout),
		}
	}
	return d, nil
}
