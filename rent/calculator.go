/*
calculator.go - Tenant balance calculation

PURPOSE:
  Answers "what does this tenant owe, or how much are they ahead?" from the
  lease terms and the full payment history. This is a pure function; the
  triggers in ledger.go load the inputs and persist the output.

FORMULA:
  monthsElapsed = (nowYear - startYear) * 12 + (nowMonth - startMonth) + 1
  totalRentDue  = rent * monthsElapsed
  totalPaid     = sum(amount) over all cash payments, all time
  balance       = totalRentDue - totalPaid

  balance > 0  -> arrears = balance, credit = 0   ("Owes Rent")
  balance < 0  -> credit = -balance, arrears = 0  ("Overpaid")
  balance == 0 -> both zero                       ("Settled")

SYNTHETIC PAYMENTS:
  Credit Carry Forward entries written by the rollover job move existing
  credit onto a month's rent; no cash changes hands. Counting them would
  count the same money twice, so they are left out of totalPaid.

EXAMPLE:
  Rent 5000, lease started 3 months ago (inclusive), payments 12000 + 5000:
  due 15000, paid 17000, balance -2000 -> credit 2000.
*/
package rent

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceStatus is the human-readable balance label shown to tenants.
type BalanceStatus string

const (
	StatusOwesRent BalanceStatus = "Owes Rent"
	StatusOverpaid BalanceStatus = "Overpaid"
	StatusSettled  BalanceStatus = "Settled"
)

// CalculatorInput is everything the calculator needs for one tenant.
type CalculatorInput struct {
	Rent       decimal.Decimal
	LeaseStart time.Time // zero falls back to CreatedAt, then Now
	CreatedAt  time.Time
	Payments   []Payment
	Paid       decimal.Decimal // cash total already summed by the store, added to Payments
	Now        time.Time
}

// Balance is the calculator output.
type Balance struct {
	Rent          decimal.Decimal
	MonthsElapsed int
	TotalRentDue  decimal.Decimal
	TotalPaid     decimal.Decimal
	Balance       decimal.Decimal // positive: owes, negative: overpaid
	Credit        decimal.Decimal
	Arrears       decimal.Decimal

	// Period is the month the balance was evaluated in.
	Period Month
	// FutureLease is set when the lease starts after Period. The month
	// count is then zero or negative and rent due is understated.
	FutureLease bool
}

// Status returns the balance label.
func (b Balance) Status() BalanceStatus {
	switch {
	case b.Balance.IsPositive():
		return StatusOwesRent
	case b.Balance.IsNegative():
		return StatusOverpaid
	default:
		return StatusSettled
	}
}

// Update returns the cached fields a trigger should persist.
func (b Balance) Update() BalanceUpdate {
	return BalanceUpdate{Credit: b.Credit, Arrears: b.Arrears, Period: b.Period}
}

// Calculate computes the balance for one tenant.
func Calculate(in CalculatorInput) Balance {
	start := in.LeaseStart
	if start.IsZero() {
		start = in.CreatedAt
	}
	if start.IsZero() {
		start = in.Now
	}

	// Stores may hand back UTC; the lease month is the one in Now's zone.
	months := MonthsElapsed(start.In(in.Now.Location()), in.Now)
	due := in.Rent.Mul(decimal.NewFromInt(int64(months)))
	paid := in.Paid.Add(TotalPaid(in.Payments))
	balance := due.Sub(paid)

	b := Balance{
		Rent:          in.Rent,
		MonthsElapsed: months,
		TotalRentDue:  due,
		TotalPaid:     paid,
		Balance:       balance,
		Credit:        decimal.Zero,
		Arrears:       decimal.Zero,
		Period:        MonthOf(in.Now),
		FutureLease:   months <= 0,
	}
	if balance.IsNegative() {
		b.Credit = balance.Neg()
	} else if balance.IsPositive() {
		b.Arrears = balance
	}
	return b
}

// TotalPaid sums the cash payments in the list.
func TotalPaid(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.IsSynthetic() {
			continue
		}
		total = total.Add(p.Amount)
	}
	return total
}
