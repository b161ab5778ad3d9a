package models

import "time"

type Direction string

const (
	DirectionDebit Direction = "debit"
	DirectionGrant Direction = "grant"
)

// Profile is the per-user ledger account. Its balance is only ever changed
// by the atomic debit and grant procedures in the repository layer.
type Profile struct {
	ID             string
	Credits        int
	TotalGenerated int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreditTransaction is one ledger row per debit or grant. For grants the
// payment intent id is the idempotency key; the provisioning grant has none.
type CreditTransaction struct {
	ID              int64
	ProfileID       string
	Direction       Direction
	Amount          int
	Reason          string
	PaymentIntentID *string
	CreatedAt       time.Time
}

// CreditPackage describes a purchasable credit bundle. Checkout sessions are
// created against this catalog and the webhook metadata names the package.
type CreditPackage struct {
	Name            string `json:"name"`
	Credits         int    `json:"credits"`
	PriceMinorUnits int    `json:"priceMinorUnits"`
	Currency        string `json:"currency"`
}

var creditPackages = []CreditPackage{
	{Name: "starter", Credits: 10, PriceMinorUnits: 499, Currency: "EUR"},
	{Name: "standard", Credits: 30, PriceMinorUnits: 1199, Currency: "EUR"},
	{Name: "studio", Credits: 100, PriceMinorUnits: 2999, Currency: "EUR"},
}

// Packages returns the fixed credit package catalog.
func Packages() []CreditPackage {
	out := make([]CreditPackage, len(creditPackages))
	copy(out, creditPackages)
	return out
}

// PackageByName looks up a package by its catalog name.
func PackageByName(name string) (CreditPackage, bool) {
	for _, p := range creditPackages {
		if p.Name == name {
			return p, true
		}
	}
	return CreditPackage{}, false
}
