package domain

import (
	"github.com/Rhymond/go-money"
)

// Customer is the customer record projected from one row.
type Customer struct {
	Name     string
	Phone    string
	Email    string
	Document string
	Notes    string
	Source   string
}

func (c Customer) Validate() error {
	if c.Name == "" && c.Phone == "" {
		return &RowValidationFailure{Entity: EntityCustomer, Reason: "customer needs a name or a phone"}
	}
	return nil
}

func (c Customer) Fields() map[string]any {
	return compact(map[string]any{
		"name":          c.Name,
		"phone":         c.Phone,
		"email":         c.Email,
		"document":      c.Document,
		"notes":         c.Notes,
		"legacy_source": c.Source,
	})
}

type Address struct {
	CustomerID   string
	Street       string
	Number       string
	Complement   string
	Neighborhood string
	City         string
	Zip          string
	Reference    string
}

// Empty reports whether no address field carries a value.
func (a Address) Empty() bool {
	return a.Street == "" && a.Number == "" && a.Complement == "" && a.Neighborhood == "" &&
		a.City == "" && a.Zip == "" && a.Reference == ""
}

func (a Address) Validate() error {
	if a.CustomerID == "" {
		return &RowValidationFailure{Entity: EntityAddress, Reason: "address has no customer to attach to"}
	}
	if a.Street == "" && a.Neighborhood == "" && a.Zip == "" {
		return &RowValidationFailure{Entity: EntityAddress, Reason: "address needs a street, neighborhood or postal code"}
	}
	return nil
}

func (a Address) Fields() map[string]any {
	return compact(map[string]any{
		"customer_id":  a.CustomerID,
		"street":       a.Street,
		"number":       a.Number,
		"complement":   a.Complement,
		"neighborhood": a.Neighborhood,
		"city":         a.City,
		"zip":          a.Zip,
		"reference":    a.Reference,
	})
}

// DeliveryZone is a neighborhood with its delivery fee.
type DeliveryZone struct {
	Neighborhood string
	Fee          *money.Money
}

func (z DeliveryZone) Validate() error {
	if z.Neighborhood == "" {
		return &RowValidationFailure{Entity: EntityDeliveryZone, Reason: "delivery fee without a neighborhood"}
	}
	if z.Fee == nil {
		return &RowValidationFailure{Entity: EntityDeliveryZone, Reason: "delivery fee is not a valid amount"}
	}
	return nil
}

func (z DeliveryZone) Fields() map[string]any {
	fields := map[string]any{"neighborhood": z.Neighborhood}
	if z.Fee != nil {
		fields["fee_minor"] = z.Fee.Amount()
		fields["fee_currency"] = z.Fee.Currency().Code
		fields["fee_display"] = z.Fee.Display()
	}
	return fields
}

// MissingFields returns the incoming fields that existing does not already hold
// with a non-empty value. Existing values always win.
func MissingFields(existing, incoming map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range incoming {
		if isEmptyValue(v) {
			continue
		}
		if cur, ok := existing[k]; ok && !isEmptyValue(cur) {
			continue
		}
		out[k] = v
	}
	return out
}

func compact(fields map[string]any) map[string]any {
	for k, v := range fields {
		if isEmptyValue(v) {
			delete(fields, k)
		}
	}
	return fields
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}
