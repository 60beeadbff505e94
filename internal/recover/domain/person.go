package domain

import "time"

// PersonID is the identity directory's opaque person identifier.
type PersonID string

// AccountStatus describes an account as reported by the identity directory.
type AccountStatus struct {
	Username string
	Active   bool
}

// Quarantine is an administrative hold on an account. Whether it blocks SMS
// recovery depends on the configured accepted-quarantine list.
type Quarantine struct {
	Type string
}

// QuarantineStatus is the directory's quarantine report for an account. The
// lock flag lives here rather than on AccountStatus because the directory
// derives it from the quarantines.
type QuarantineStatus struct {
	Locked      bool
	Quarantines []Quarantine
}

// Trait is an account attribute record. Freshness traits carry a date,
// self-reservation traits carry a numeric flag.
type Trait struct {
	Name   string
	Date   *time.Time
	Number int
}

// Trait names with meaning to the recovery service.
const (
	TraitNewStudent   = "new_student"
	TraitSMSWelcome   = "sms_welcome"
	TraitPaswReserved = "pasw_reserved"
)

// Affiliation ties a person to a source system. A deleted affiliation may
// still count within the configured grace period.
type Affiliation struct {
	SourceSystem string
	DeletedAt    *time.Time
}

// Contact is a phone (or other) contact record from a source system.
type Contact struct {
	SourceSystem string
	Type         string
	Value        string
	LastModified *time.Time
}

// Consent is a person-level consent record. The "publication" consent
// suppresses username listing.
type Consent struct {
	Name string
}

// ConsentPublication marks a person who opted out of being listed.
const ConsentPublication = "publication"

// Person is the directory's person record, reduced to what eligibility
// rules need.
type Person struct {
	ID        PersonID
	CreatedAt *time.Time
}

// ContactRule is one entry of the configured contact acceptance table: a
// (source system, contact type) pair and the minimum age in days a non-fresh
// record must have before it counts.
type ContactRule struct {
	System    string
	Type      string
	DelayDays int
}

// Matches reports whether a contact record falls under this rule.
func (r ContactRule) Matches(c Contact) bool {
	return r.System == c.SourceSystem && r.Type == c.Type
}
