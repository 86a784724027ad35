package entity

// PaymentType categorises what the advance is for
type PaymentType string

const (
	PaymentTypeTravel        PaymentType = "travel"
	PaymentTypeSubsistence   PaymentType = "subsistence"
	PaymentTypeFuel          PaymentType = "fuel"
	PaymentTypeSupplies      PaymentType = "supplies"
	PaymentTypeAccommodation PaymentType = "accommodation"
	PaymentTypeTraining      PaymentType = "training"
	PaymentTypeOther         PaymentType = "other"
)

var validPaymentTypes = map[PaymentType]bool{
	PaymentTypeTravel:        true,
	PaymentTypeSubsistence:   true,
	PaymentTypeFuel:          true,
	PaymentTypeSupplies:      true,
	PaymentTypeAccommodation: true,
	PaymentTypeTraining:      true,
	PaymentTypeOther:         true,
}

// IsValid returns true for a known payment type
func (p PaymentType) IsValid() bool {
	return validPaymentTypes[p]
}

// Role is the capability an authenticated actor holds
type Role string

const (
	RoleEmployee   Role = "employee"
	RoleHOD        Role = "hod"
	RoleAccountant Role = "accountant"
	RoleAdmin      Role = "admin"
)

// IsValid returns true for a known role
func (r Role) IsValid() bool {
	switch r {
	case RoleEmployee, RoleHOD, RoleAccountant, RoleAdmin:
		return true
	default:
		return false
	}
}

// Actor is the authenticated caller of an operation
type Actor struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       Role   `json:"role"`
	Department string `json:"department"`
}

// Party returns the actor's identity as recorded on the imprest
func (a Actor) Party() Party {
	return Party{ID: a.ID, Name: a.Name}
}

// History action constants
const (
	ActionCreate = "create"
)
