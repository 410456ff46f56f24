package services

import (
	"strings"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
)

// projectRow flattens a row into field key to value through the plan. Value
// mapped fields are substituted, falling back to the raw value. Empty values
// and unmapped columns are absent from the result.
func projectRow(plan *domain.MigrationPlan, file string, headers []string, row domain.Row) map[string]string {
	record := make(map[string]string)
	multi := make(map[string][]string)
	for _, h := range headers {
		key, ok := plan.FieldFor(file, h)
		if !ok {
			continue
		}
		raw, _ := row.Get(h)
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		field, _ := domain.LookupField(key)
		value := raw
		if field.RequiresValueMapping {
			value = plan.Canonical(key, raw)
		}
		if field.MultiValued {
			multi[key] = append(multi[key], value)
			continue
		}
		record[key] = value
	}
	for key, values := range multi {
		record[key] = domain.JoinMultiValued(values)
	}
	return record
}

// projection holds the entities inferred from one row.
type projection struct {
	customer *domain.Customer
	address  *domain.Address
	zone     *domain.DeliveryZone
	// zoneErr is set when fee columns are present but the zone is invalid.
	zoneErr error
}

type entityBuilder struct {
	phones   PhonePolicy
	currency string
}

func (b entityBuilder) build(record map[string]string, source string) projection {
	var p projection

	if hasAny(record, domain.FieldCustomerName, domain.FieldCustomerPhone, domain.FieldCustomerEmail,
		domain.FieldCustomerDocument, domain.FieldCustomerNotes) {
		p.customer = &domain.Customer{
			Name:     collapseSpaces(record[domain.FieldCustomerName]),
			Phone:    b.phones.Normalize(record[domain.FieldCustomerPhone]),
			Email:    strings.ToLower(record[domain.FieldCustomerEmail]),
			Document: record[domain.FieldCustomerDocument],
			Notes:    record[domain.FieldCustomerNotes],
			Source:   source,
		}
	}

	addr := domain.Address{
		Street:       record[domain.FieldAddressStreet],
		Number:       record[domain.FieldAddressNumber],
		Complement:   record[domain.FieldAddressComplement],
		Neighborhood: record[domain.FieldAddressNeighborhood],
		City:         record[domain.FieldAddressCity],
		Zip:          record[domain.FieldAddressZip],
		Reference:    record[domain.FieldAddressReference],
	}
	if !addr.Empty() {
		p.address = &addr
	}

	if fee, ok := record[domain.FieldDeliveryFeePrice]; ok {
		zone := domain.DeliveryZone{Neighborhood: record[domain.FieldAddressNeighborhood]}
		if m, err := parseMoney(fee, b.currency); err == nil {
			zone.Fee = m
		}
		if err := zone.Validate(); err != nil {
			p.zoneErr = err
		} else {
			p.zone = &zone
		}
	}
	return p
}

func hasAny(record map[string]string, keys ...string) bool {
	for _, k := range keys {
		if record[k] != "" {
			return true
		}
	}
	return false
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
