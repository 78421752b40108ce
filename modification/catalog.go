/*
catalog.go - Modification variant registration and schema lookup

PURPOSE:
  Provides the static registry of the ten modification variants: which
  fields each one takes, their numeric ranges and enum options, and the
  UI category each variant belongs to. The validator enforces what the
  catalog describes; the API serves schemas to form builders.

HOW IT WORKS:
  1. Every variant registers a Descriptor in init()
  2. Lookup/Schema fail with UnknownTypeError for unregistered types
  3. Dispatch tables (validator, impact, pipeline) are checked against
     the registry at init so a variant can never be half-wired

USAGE:
  spec, err := modification.Schema(modification.TypeRateChange)
  for _, f := range spec { ... render form field ... }

SEE ALSO:
  - types.go: the variant enum and parameter structs
  - validator.go: enforces the ranges declared here
*/
package modification

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/meridian/loan-engine/loan"
)

// =============================================================================
// CATEGORY - UI grouping label
// =============================================================================

type Category string

const (
	CategoryRateTerms        Category = "Rate & Terms"
	CategoryPaymentRelief    Category = "Payment Relief"
	CategoryPrincipalChanges Category = "Principal Changes"
	CategoryBalloonOptions   Category = "Balloon Options"
	CategoryHardshipOptions  Category = "Hardship Options"
	CategoryRestructuring    Category = "Restructuring"
)

// =============================================================================
// FIELD SPEC - Declarative schema for one parameter field
// =============================================================================

type FieldKind string

const (
	FieldMoney FieldKind = "money"
	FieldRate  FieldKind = "rate"
	FieldInt   FieldKind = "int"
	FieldDate  FieldKind = "date"
	FieldEnum  FieldKind = "enum"
	FieldBool  FieldKind = "bool"
)

type FieldSpec struct {
	Name     string           `json:"name"`
	Kind     FieldKind        `json:"kind"`
	Required bool             `json:"required"`
	Min      *decimal.Decimal `json:"min,omitempty"`
	Max      *decimal.Decimal `json:"max,omitempty"`
	Options  []string         `json:"options,omitempty"`

	// RequiredWhen names the enum field and values that make this field
	// mandatory (e.g. customPayment when paymentRecalculation=CUSTOM).
	RequiredWhen string `json:"requiredWhen,omitempty"`
}

// Descriptor bundles everything the catalog knows about one variant.
type Descriptor struct {
	Type     Type        `json:"type"`
	Label    string      `json:"label"`
	Category Category    `json:"category"`
	Fields   []FieldSpec `json:"fields"`
}

// =============================================================================
// CATALOG REGISTRY
// =============================================================================

var (
	catalog   = make(map[Type]Descriptor)
	catalogMu sync.RWMutex
	typeOrder []Type
)

// RegisterDescriptor adds a variant to the catalog. Registering the same
// type twice panics; the catalog is assembled once at init.
func RegisterDescriptor(d Descriptor) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	if _, dup := catalog[d.Type]; dup {
		panic(fmt.Sprintf("modification: type registered twice: %s", d.Type))
	}
	catalog[d.Type] = d
	typeOrder = append(typeOrder, d.Type)
}

// Lookup finds a registered descriptor.
func Lookup(t Type) (Descriptor, error) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	d, ok := catalog[t]
	if !ok {
		return Descriptor{}, &loan.UnknownTypeError{Type: string(t)}
	}
	return d, nil
}

// MustLookup finds a registered descriptor or panics.
// Use in tests or when you're certain the type exists.
func MustLookup(t Type) Descriptor {
	d, err := Lookup(t)
	if err != nil {
		panic(err)
	}
	return d
}

// Schema returns the field specs for a variant.
func Schema(t Type) ([]FieldSpec, error) {
	d, err := Lookup(t)
	if err != nil {
		return nil, err
	}
	return d.Fields, nil
}

// Types returns all registered types in sorted order.
func Types() []Type {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	out := make([]Type, len(typeOrder))
	copy(out, typeOrder)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Descriptors returns all registered descriptors in sorted type order.
func Descriptors() []Descriptor {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	out := make([]Descriptor, 0, len(catalog))
	for _, t := range Types() {
		out = append(out, catalog[t])
	}
	return out
}

// Known reports whether a type is registered.
func Known(t Type) bool {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	_, ok := catalog[t]
	return ok
}

// assertCovers panics unless the dispatch table covers every registered
// type exactly. Called from init by the validator, impact and pipeline
// tables so a new variant cannot ship half-wired.
func assertCovers(table map[Type]bool, name string) {
	for _, t := range Types() {
		if !table[t] {
			panic(fmt.Sprintf("modification: %s table missing type %s", name, t))
		}
	}
}

// =============================================================================
// REGISTRATIONS - The ten variants
// =============================================================================

func dec(s string) *decimal.Decimal {
	d := loan.MustMoney(s)
	return &d
}

func init() {
	RegisterDescriptor(Descriptor{
		Type:     TypeRateChange,
		Label:    "Interest Rate Change",
		Category: CategoryRateTerms,
		Fields: []FieldSpec{
			{Name: "newAnnualRate", Kind: FieldRate, Required: true, Min: dec("0.01"), Max: dec("50")},
		},
	})
	RegisterDescriptor(Descriptor{
		Type:     TypeTermExtension,
		Label:    "Term Extension",
		Category: CategoryRateTerms,
		Fields: []FieldSpec{
			{Name: "additionalMonths", Kind: FieldInt, Required: true, Min: dec("1"), Max: dec("360")},
			{Name: "keepSamePayment", Kind: FieldBool},
		},
	})
	RegisterDescriptor(Descriptor{
		Type:     TypeTemporaryPaymentReduction,
		Label:    "Temporary Payment Reduction",
		Category: CategoryPaymentRelief,
		Fields: []FieldSpec{
			{Name: "reducedPayment", Kind: FieldMoney, Required: true, Min: dec("0.01")},
			{Name: "numberOfTerms", Kind: FieldInt, Required: true, Min: dec("1"), Max: dec("60")},
			{Name: "interestHandling", Kind: FieldEnum, Required: true,
				Options: []string{string(Capitalize), string(Defer), string(Waive)}},
		},
	})
	RegisterDescriptor(Descriptor{
		Type:     TypePermanentPaymentReduction,
		Label:    "Permanent Payment Reduction",
		Category: CategoryPaymentRelief,
		Fields: []FieldSpec{
			{Name: "newPayment", Kind: FieldMoney, Required: true, Min: dec("0.01")},
			{Name: "termAdjustment", Kind: FieldEnum, Required: true,
				Options: []string{string(AdjustExtendTerm), string(AdjustReducePrincipal), string(AdjustCombination)}},
			{Name: "newTermMonths", Kind: FieldInt, Min: dec("1"),
				RequiredWhen: "termAdjustment=EXTEND_TERM|COMBINATION"},
			{Name: "principalReduction", Kind: FieldMoney, Min: dec("0.01"),
				RequiredWhen: "termAdjustment=REDUCE_PRINCIPAL|COMBINATION"},
		},
	})
	RegisterDescriptor(Descriptor{
		Type:     TypePrincipalReduction,
		Label:    "Principal Reduction",
		Category: CategoryPrincipalChanges,
		Fields: []FieldSpec{
			{Name: "reductionAmount", Kind: FieldMoney, Required: true, Min: dec("0.01")},
			{Name: "paymentRecalculation", Kind: FieldEnum, Required: true,
				Options: []string{string(RecalcKeepTerm), string(RecalcKeepPayment), string(RecalcCustom)}},
			{Name: "customPayment", Kind: FieldMoney, Min: dec("0.01"),
				RequiredWhen: "paymentRecalculation=CUSTOM"},
			{Name: "customTermMonths", Kind: FieldInt, Min: dec("1"),
				RequiredWhen: "paymentRecalculation=CUSTOM"},
		},
	})
	RegisterDescriptor(Descriptor{
		Type:     TypeBalloonAssignment,
		Label:    "Balloon Payment Assignment",
		Category: CategoryBalloonOptions,
		Fields: []FieldSpec{
			{Name: "balloonAmount", Kind: FieldMoney, Required: true, Min: dec("0.01")},
			{Name: "balloonDueDate", Kind: FieldDate, Required: true},
			{Name: "reamortizationStart", Kind: FieldEnum, Required: true,
				Options: []string{string(StartCurrentTerm), string(StartNextTerm), string(StartBeginning), string(StartCustom)}},
			{Name: "customStartTerm", Kind: FieldInt, Min: dec("1"),
				RequiredWhen: "reamortizationStart=CUSTOM"},
		},
	})
	RegisterDescriptor(Descriptor{
		Type:     TypeBalloonRemoval,
		Label:    "Balloon Payment Removal",
		Category: CategoryBalloonOptions,
		Fields: []FieldSpec{
			{Name: "reamortization", Kind: FieldEnum, Required: true,
				Options: []string{string(RemovalExtendTerm), string(RemovalIncreasePayment), string(RemovalCustom)}},
			{Name: "customPayment", Kind: FieldMoney, Min: dec("0.01"),
				RequiredWhen: "reamortization=CUSTOM"},
			{Name: "customTermMonths", Kind: FieldInt, Min: dec("1"),
				RequiredWhen: "reamortization=CUSTOM"},
		},
	})
	RegisterDescriptor(Descriptor{
		Type:     TypeForbearance,
		Label:    "Forbearance",
		Category: CategoryHardshipOptions,
		Fields: []FieldSpec{
			{Name: "durationMonths", Kind: FieldInt, Required: true, Min: dec("1"), Max: dec("12")},
			{Name: "type", Kind: FieldEnum, Required: true,
				Options: []string{string(FullPause), string(PartialReduction)}},
			{Name: "reducedPayment", Kind: FieldMoney, Min: dec("0.01"),
				RequiredWhen: "type=PARTIAL_REDUCTION"},
		},
	})
	RegisterDescriptor(Descriptor{
		Type:     TypeDeferment,
		Label:    "Deferment",
		Category: CategoryHardshipOptions,
		Fields: []FieldSpec{
			{Name: "durationMonths", Kind: FieldInt, Required: true, Min: dec("1"), Max: dec("24")},
			{Name: "interestSubsidy", Kind: FieldBool},
		},
	})
	RegisterDescriptor(Descriptor{
		Type:     TypeReamortization,
		Label:    "Reamortization",
		Category: CategoryRestructuring,
		Fields: []FieldSpec{
			{Name: "mode", Kind: FieldEnum, Required: true,
				Options: []string{string(ModeResetSchedule), string(ModeAdjustRemaining), string(ModeFullRecalc)}},
			{Name: "newPrincipal", Kind: FieldMoney, Min: dec("0.01")},
			{Name: "newAnnualRate", Kind: FieldRate, Min: dec("0.01"), Max: dec("50")},
			{Name: "newTermMonths", Kind: FieldInt, Min: dec("1")},
		},
	})
}
