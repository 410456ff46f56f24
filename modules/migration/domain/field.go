package domain

import "sort"

type ValueKind string

const (
	KindText     ValueKind = "text"
	KindPhone    ValueKind = "phone"
	KindCurrency ValueKind = "currency"
	KindEmail    ValueKind = "email"
	KindFreeForm ValueKind = "free_form"
)

// EntityType doubles as the store collection the entity is written to.
type EntityType string

const (
	EntityCustomer     EntityType = "customers"
	EntityAddress      EntityType = "addresses"
	EntityDeliveryZone EntityType = "delivery_zones"
)

const (
	FieldCustomerName         = "customer_name"
	FieldCustomerPhone        = "customer_phone"
	FieldCustomerEmail        = "customer_email"
	FieldCustomerDocument     = "customer_document"
	FieldCustomerNotes        = "customer_notes"
	FieldAddressStreet        = "address_street"
	FieldAddressNumber        = "address_number"
	FieldAddressComplement    = "address_complement"
	FieldAddressNeighborhood  = "address_neighborhood"
	FieldAddressCity          = "address_city"
	FieldAddressZip           = "address_zip"
	FieldAddressReference     = "address_reference"
	FieldDeliveryFeePrice     = "delivery_fee_price"
	multiValuedFieldSeparator = "; "
)

// FieldCandidate is a target schema slot that source columns can be mapped onto.
type FieldCandidate struct {
	Key                  string     `json:"key"`
	Label                string     `json:"label"`
	Kind                 ValueKind  `json:"kind"`
	Entity               EntityType `json:"entity"`
	RequiresValueMapping bool       `json:"requiresValueMapping"`
	// MultiValued fields accept several columns of one file; values are joined.
	MultiValued bool `json:"multiValued"`
	// Priority breaks score ties, lower wins.
	Priority int `json:"priority"`
}

var catalog = []FieldCandidate{
	{Key: FieldCustomerName, Label: "Customer name", Kind: KindText, Entity: EntityCustomer},
	{Key: FieldCustomerPhone, Label: "Customer phone", Kind: KindPhone, Entity: EntityCustomer},
	{Key: FieldCustomerEmail, Label: "Customer e-mail", Kind: KindEmail, Entity: EntityCustomer},
	{Key: FieldCustomerDocument, Label: "Customer document (CPF/CNPJ)", Kind: KindText, Entity: EntityCustomer},
	{Key: FieldCustomerNotes, Label: "Customer notes", Kind: KindFreeForm, Entity: EntityCustomer, MultiValued: true},
	{Key: FieldAddressStreet, Label: "Street", Kind: KindText, Entity: EntityAddress},
	{Key: FieldAddressNumber, Label: "Street number", Kind: KindText, Entity: EntityAddress},
	{Key: FieldAddressComplement, Label: "Address complement", Kind: KindFreeForm, Entity: EntityAddress},
	{Key: FieldAddressNeighborhood, Label: "Neighborhood", Kind: KindText, Entity: EntityAddress, RequiresValueMapping: true},
	{Key: FieldAddressCity, Label: "City", Kind: KindText, Entity: EntityAddress, RequiresValueMapping: true},
	{Key: FieldAddressZip, Label: "Postal code", Kind: KindText, Entity: EntityAddress},
	{Key: FieldAddressReference, Label: "Address reference", Kind: KindFreeForm, Entity: EntityAddress},
	{Key: FieldDeliveryFeePrice, Label: "Delivery fee", Kind: KindCurrency, Entity: EntityDeliveryZone},
}

var catalogIndex = func() map[string]FieldCandidate {
	idx := make(map[string]FieldCandidate, len(catalog))
	for i := range catalog {
		catalog[i].Priority = i
		idx[catalog[i].Key] = catalog[i]
	}
	return idx
}()

// Catalog returns the static field catalog in priority order.
func Catalog() []FieldCandidate {
	return append([]FieldCandidate(nil), catalog...)
}

func LookupField(key string) (FieldCandidate, bool) {
	f, ok := catalogIndex[key]
	return f, ok
}

// SortFieldKeys orders field keys by catalog priority; unknown keys go last, alphabetically.
func SortFieldKeys(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		fi, iok := catalogIndex[keys[i]]
		fj, jok := catalogIndex[keys[j]]
		switch {
		case iok && jok:
			return fi.Priority < fj.Priority
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})
}

// JoinMultiValued joins the values of a multi valued field in column order.
func JoinMultiValued(values []string) string {
	out := ""
	for _, v := range values {
		if v == "" {
			continue
		}
		if out != "" {
			out += multiValuedFieldSeparator
		}
		out += v
	}
	return out
}
