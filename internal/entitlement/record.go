package entitlement

import "time"

// LicenseRecord is the persisted entitlement state for one installation. It
// lives under a single store key and survives until explicitly reset.
type LicenseRecord struct {
	Status       Status            `json:"status"`
	UserEmail    string            `json:"user_email,omitempty"`
	UserName     string            `json:"user_name,omitempty"`
	LicenseKey   string            `json:"license_key,omitempty"`
	TrialEnd     *time.Time        `json:"trial_end,omitempty"`
	PurchaseDate *time.Time        `json:"purchase_date,omitempty"`
	LastVerified *time.Time        `json:"last_verified,omitempty"`
	Features     map[string]bool   `json:"features,omitempty"`
}

// RecordPatch carries the fields of a partial update. Nil pointers leave the
// stored value untouched; merge semantics are additive only.
type RecordPatch struct {
	Status       *Status
	UserEmail    *string
	UserName     *string
	LicenseKey   *string
	TrialEnd     *time.Time
	PurchaseDate *time.Time
	LastVerified *time.Time
	Features     map[string]bool
}

// apply merges the patch into the record
func (r *LicenseRecord) apply(p RecordPatch) {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.UserEmail != nil {
		r.UserEmail = *p.UserEmail
	}
	if p.UserName != nil {
		r.UserName = *p.UserName
	}
	if p.LicenseKey != nil {
		r.LicenseKey = *p.LicenseKey
	}
	if p.TrialEnd != nil {
		r.TrialEnd = p.TrialEnd
	}
	if p.PurchaseDate != nil {
		r.PurchaseDate = p.PurchaseDate
	}
	if p.LastVerified != nil {
		r.LastVerified = p.LastVerified
	}
	if p.Features != nil {
		r.Features = p.Features
	}
}

// PeriodEnd calculates the subscription period end for the record's status,
// one year out for yearly plans and one month otherwise.
func (r *LicenseRecord) PeriodEnd(now time.Time) time.Time {
	if r.TrialEnd != nil {
		return *r.TrialEnd
	}
	if r.Status == StatusProYearly {
		return now.AddDate(1, 0, 0)
	}
	return now.AddDate(0, 1, 0)
}

// PeriodStart returns the subscription period start for the record
func (r *LicenseRecord) PeriodStart(now time.Time) time.Time {
	if r.PurchaseDate != nil {
		return *r.PurchaseDate
	}
	return now
}
