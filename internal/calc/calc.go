// Package calc implements the site's four calculator modes as pure functions:
// e-commerce profit, VAT add/remove, break-even ROAS, and self-employed tax.
// All arithmetic follows the published calculators; non-finite inputs are
// coerced to zero rather than rejected.
package calc

import "math"

const vatRate = 0.20

// 2024/25 UK income tax and Class 4 NIC thresholds.
const (
	personalAllowance = 12570.0
	basicRateUpper    = 50270.0
	higherRateUpper   = 125140.0

	basicRate      = 0.20
	higherRate     = 0.40
	additionalRate = 0.45

	nicLower          = 12570.0
	nicUpper          = 50270.0
	nicMainRate       = 0.08
	nicAdditionalRate = 0.02
)

type EcommerceInputs struct {
	ProductPrice             float64 `json:"product_price"`
	UnitsSold                float64 `json:"units_sold"`
	ProductCost              float64 `json:"product_cost"`
	ShippingCost             float64 `json:"shipping_cost"`
	PaymentProcessingPercent float64 `json:"payment_processing_percent"`
	AdSpend                  float64 `json:"ad_spend"`
	RefundRate               float64 `json:"refund_rate"`
	TargetMonthlyProfit      float64 `json:"target_monthly_profit"`
	VATRegistered            bool    `json:"vat_registered"`
}

type EcommerceResults struct {
	Revenue                       float64 `json:"revenue"`
	NetRevenue                    float64 `json:"net_revenue"`
	TotalCosts                    float64 `json:"total_costs"`
	VATAmount                     float64 `json:"vat_amount"`
	NetProfit                     float64 `json:"net_profit"`
	Margin                        float64 `json:"margin"`
	ROAS                          float64 `json:"roas"`
	ContributionMarginPerUnit     float64 `json:"contribution_margin_per_unit"`
	BreakEvenUnits                float64 `json:"break_even_units"`
	BreakEvenRevenue              float64 `json:"break_even_revenue"`
	RequiredRevenueForTarget      float64 `json:"required_revenue_for_target"`
	RequiredUnitsForTarget        float64 `json:"required_units_for_target"`
	HasNegativeContributionMargin bool    `json:"has_negative_contribution_margin"`
}

// Ecommerce evaluates the monthly profit calculator.
func Ecommerce(in EcommerceInputs) EcommerceResults {
	price := safe(in.ProductPrice)
	units := safe(in.UnitsSold)
	cost := safe(in.ProductCost)
	shipping := safe(in.ShippingCost)
	paymentPercent := safe(in.PaymentProcessingPercent)
	adSpend := safe(in.AdSpend)
	refundRate := math.Max(0, safe(in.RefundRate))
	target := math.Max(0, safe(in.TargetMonthlyProfit))

	revenue := price * units
	netRevenue := revenue * (1 - refundRate/100)

	contributionPerUnit := price - cost - shipping - price*(paymentPercent/100)

	vatAmount := 0.0
	if in.VATRegistered {
		vatAmount = netRevenue * vatRate
	}

	paymentFee := netRevenue * (paymentPercent / 100)
	totalCosts := cost*units + shipping*units + adSpend + paymentFee + vatAmount
	netProfit := netRevenue - totalCosts

	margin := 0.0
	if netRevenue > 0 {
		margin = netProfit / netRevenue * 100
	}

	roas := 0.0
	if adSpend > 0 {
		roas = netRevenue / adSpend
	}

	breakEvenUnits := 0.0
	if contributionPerUnit > 0 {
		breakEvenUnits = adSpend / contributionPerUnit
	}
	breakEvenRevenue := breakEvenUnits * price

	contributionRatio := 0.0
	if price > 0 {
		contributionRatio = contributionPerUnit / price
	}

	requiredRevenue := 0.0
	if target > 0 && contributionRatio > 0 {
		requiredRevenue = (adSpend + target) / contributionRatio
	}
	requiredUnits := 0.0
	if requiredRevenue > 0 && price > 0 {
		requiredUnits = requiredRevenue / price
	}

	return EcommerceResults{
		Revenue:                       revenue,
		NetRevenue:                    netRevenue,
		TotalCosts:                    totalCosts,
		VATAmount:                     vatAmount,
		NetProfit:                     netProfit,
		Margin:                        margin,
		ROAS:                          roas,
		ContributionMarginPerUnit:     contributionPerUnit,
		BreakEvenUnits:                breakEvenUnits,
		BreakEvenRevenue:              breakEvenRevenue,
		RequiredRevenueForTarget:      requiredRevenue,
		RequiredUnitsForTarget:        requiredUnits,
		HasNegativeContributionMargin: contributionPerUnit <= 0,
	}
}

type VATOperation string

const (
	VATAdd    VATOperation = "add"
	VATRemove VATOperation = "remove"
)

type VATInputs struct {
	Amount    float64      `json:"amount"`
	Rate      float64      `json:"rate"`
	Operation VATOperation `json:"operation"`
}

type VATResults struct {
	NetAmount   float64 `json:"net_amount"`
	VATAmount   float64 `json:"vat_amount"`
	GrossAmount float64 `json:"gross_amount"`
}

// VAT adds VAT to a net amount or extracts it from a gross amount.
func VAT(in VATInputs) VATResults {
	amount := safe(in.Amount)
	rate := math.Max(0, safe(in.Rate)) / 100

	if in.Operation == VATRemove {
		gross := amount
		divisor := 1 + rate
		net := gross
		if divisor > 0 {
			net = gross / divisor
		}
		return VATResults{NetAmount: net, VATAmount: gross - net, GrossAmount: gross}
	}

	return VATResults{
		NetAmount:   amount,
		VATAmount:   amount * rate,
		GrossAmount: amount * (1 + rate),
	}
}

type BreakEvenInputs struct {
	ProductPrice             float64 `json:"product_price"`
	ProductCost              float64 `json:"product_cost"`
	AdSpend                  float64 `json:"ad_spend"`
	PaymentProcessingPercent float64 `json:"payment_processing_percent"`
	ShippingCost             float64 `json:"shipping_cost"`
}

type BreakEvenResults struct {
	BreakEvenUnits   float64 `json:"break_even_units"`
	BreakEvenRevenue float64 `json:"break_even_revenue"`
	RequiredROAS     float64 `json:"required_roas"`
	NetMargin        float64 `json:"net_margin"`
}

// BreakEven evaluates the break-even ROAS calculator.
func BreakEven(in BreakEvenInputs) BreakEvenResults {
	price := safe(in.ProductPrice)
	cost := safe(in.ProductCost)
	adSpend := safe(in.AdSpend)
	paymentPercent := safe(in.PaymentProcessingPercent)
	shipping := safe(in.ShippingCost)

	paymentFeePerUnit := price * (paymentPercent / 100)
	contributionPerUnit := price - cost - shipping - paymentFeePerUnit

	breakEvenUnits := 0.0
	if contributionPerUnit > 0 {
		breakEvenUnits = adSpend / contributionPerUnit
	}
	breakEvenRevenue := breakEvenUnits * price

	requiredROAS := 0.0
	if adSpend > 0 {
		requiredROAS = breakEvenRevenue / adSpend
	}

	netMargin := 0.0
	if price > 0 {
		netMargin = (price - cost - shipping - paymentFeePerUnit - adSpend) / price * 100
	}

	return BreakEvenResults{
		BreakEvenUnits:   breakEvenUnits,
		BreakEvenRevenue: breakEvenRevenue,
		RequiredROAS:     requiredROAS,
		NetMargin:        netMargin,
	}
}

type SelfEmployedInputs struct {
	AnnualRevenue  float64 `json:"annual_revenue"`
	AnnualExpenses float64 `json:"annual_expenses"`
	IncludeNIC     bool    `json:"include_nic"`
}

type SelfEmployedResults struct {
	TaxableProfit      float64 `json:"taxable_profit"`
	EstimatedIncomeTax float64 `json:"estimated_income_tax"`
	NationalInsurance  float64 `json:"national_insurance"`
	EstimatedTakeHome  float64 `json:"estimated_take_home"`
}

// SelfEmployed estimates income tax and Class 4 NIC on sole-trader profit.
func SelfEmployed(in SelfEmployedInputs) SelfEmployedResults {
	revenue := safe(in.AnnualRevenue)
	expenses := safe(in.AnnualExpenses)
	profit := math.Max(0, revenue-expenses)

	remaining := math.Max(0, profit-personalAllowance)

	basicBand := math.Min(remaining, basicRateUpper-personalAllowance)
	remaining -= basicBand

	higherBand := math.Min(remaining, higherRateUpper-basicRateUpper)
	remaining -= higherBand

	additionalBand := math.Max(0, remaining)

	incomeTax := basicBand*basicRate + higherBand*higherRate + additionalBand*additionalRate

	nic := 0.0
	if in.IncludeNIC {
		nicTaxable := math.Max(0, profit-nicLower)
		mainBand := math.Min(nicTaxable, nicUpper-nicLower)
		additionalNICBand := math.Max(0, nicTaxable-mainBand)
		nic = mainBand*nicMainRate + additionalNICBand*nicAdditionalRate
	}

	takeHome := math.Max(0, profit-incomeTax-nic)

	return SelfEmployedResults{
		TaxableProfit:      profit,
		EstimatedIncomeTax: incomeTax,
		NationalInsurance:  nic,
		EstimatedTakeHome:  takeHome,
	}
}

func safe(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
