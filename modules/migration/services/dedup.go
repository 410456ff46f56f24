package services

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
)

const (
	lookupChunkSize = 200

	fieldDedupKey   = "dedup_key"
	fieldPhone      = "phone"
	fieldEmail      = "email"
	fieldName       = "name"
	fieldCustomerID = "customer_id"
	fieldNeighbor   = "neighborhood"
)

var documentNamespace = uuid.MustParse("9b3c5d0e-4f61-4a8e-9a43-1d6f2f8c7b11")

// documentKey derives a stable key so a re-run upserts instead of inserting.
func documentKey(tenantID uuid.UUID, identity string) string {
	return uuid.NewSHA1(documentNamespace, []byte(tenantID.String()+"|"+identity)).String()
}

// customerMatch describes how a customer is recognized in the store.
type customerMatch struct {
	identity    string
	lookupField string
	lookupValue string
	matches     func(domain.Document) bool
}

func customerIdentity(strategy domain.DedupStrategy, c domain.Customer) customerMatch {
	always := func(domain.Document) bool { return true }
	switch {
	case c.Phone != "" && strategy == domain.DedupByPhoneEmail:
		return customerMatch{
			identity:    "phone:" + c.Phone + "|email:" + c.Email,
			lookupField: fieldPhone,
			lookupValue: c.Phone,
			matches: func(d domain.Document) bool {
				return strings.EqualFold(d.String(fieldEmail), c.Email)
			},
		}
	case c.Phone != "" && strategy == domain.DedupByPhoneName:
		name := normalizeKey(c.Name)
		return customerMatch{
			identity:    "phone:" + c.Phone + "|name:" + name,
			lookupField: fieldPhone,
			lookupValue: c.Phone,
			matches: func(d domain.Document) bool {
				return normalizeKey(d.String(fieldName)) == name
			},
		}
	case c.Phone != "":
		return customerMatch{identity: "phone:" + c.Phone, lookupField: fieldPhone, lookupValue: c.Phone, matches: always}
	case c.Email != "" && strategy == domain.DedupByPhoneEmail:
		return customerMatch{identity: "email:" + c.Email, lookupField: fieldEmail, lookupValue: c.Email, matches: always}
	default:
		// no natural key: fall back to the row's origin so re-runs stay idempotent
		id := "source:" + c.Source
		return customerMatch{identity: id, lookupField: fieldDedupKey, lookupValue: id, matches: always}
	}
}

func addressIdentity(customerKey string, street, number, neighborhood string) string {
	return strings.Join([]string{"address", customerKey, normalizeStreet(street), normalizeKey(number), normalizeKey(neighborhood)}, "|")
}

func zoneIdentity(neighborhood string) string {
	return "zone|" + normalizeKey(neighborhood)
}

// claim is an entity already seen in the store or earlier in this run.
type claim struct {
	key    string
	fields map[string]any
	// fromStore marks documents that existed before the run.
	fromStore bool
	// origin is the result slot of the row that created the entity in this
	// run, -1 for store documents.
	origin int
}

// dedupIndex resolves identities against prefetched store documents and
// entities claimed earlier in the same run.
type dedupIndex struct {
	tenantID uuid.UUID

	customers map[string][]domain.Document // lookupField|value
	addresses map[string]domain.Document   // address identity
	zones     map[string]domain.Document   // zone identity

	claims map[string]*claim
}

func newDedupIndex(tenantID uuid.UUID) *dedupIndex {
	return &dedupIndex{
		tenantID:  tenantID,
		customers: make(map[string][]domain.Document),
		addresses: make(map[string]domain.Document),
		zones:     make(map[string]domain.Document),
		claims:    make(map[string]*claim),
	}
}

type queryFunc func(ctx context.Context, collection domain.EntityType, predicate domain.Predicate) ([]domain.Document, error)

// prefetch loads every store document that rows of this run could match.
func (idx *dedupIndex) prefetch(ctx context.Context, query queryFunc, plans []*rowPlan) error {
	lookups := make(map[string][]string)
	var zoneNames []string
	for _, rp := range plans {
		if rp.customer != nil {
			lookups[rp.match.lookupField] = append(lookups[rp.match.lookupField], rp.match.lookupValue)
		}
		if rp.zone != nil {
			zoneNames = append(zoneNames, rp.zone.Neighborhood)
		}
	}

	fields := make([]string, 0, len(lookups))
	for f := range lookups {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	matchedKeys := make(map[string]struct{})
	for _, field := range fields {
		docs, err := chunkedQuery(ctx, query, domain.EntityCustomer, field, lookups[field])
		if err != nil {
			return err
		}
		for _, d := range docs {
			v := d.String(field)
			idx.customers[field+"|"+v] = append(idx.customers[field+"|"+v], d)
			matchedKeys[d.Key] = struct{}{}
		}
	}
	for k := range idx.customers {
		docs := idx.customers[k]
		sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	}

	if len(matchedKeys) > 0 {
		keys := make([]string, 0, len(matchedKeys))
		for k := range matchedKeys {
			keys = append(keys, k)
		}
		docs, err := chunkedQuery(ctx, query, domain.EntityAddress, fieldCustomerID, keys)
		if err != nil {
			return err
		}
		for _, d := range docs {
			id := addressIdentity(d.String(fieldCustomerID), d.String("street"), d.String("number"), d.String(fieldNeighbor))
			if _, dup := idx.addresses[id]; !dup {
				idx.addresses[id] = d
			}
		}
	}

	if len(zoneNames) > 0 {
		docs, err := chunkedQuery(ctx, query, domain.EntityDeliveryZone, fieldNeighbor, zoneNames)
		if err != nil {
			return err
		}
		for _, d := range docs {
			id := zoneIdentity(d.String(fieldNeighbor))
			if _, dup := idx.zones[id]; !dup {
				idx.zones[id] = d
			}
		}
	}
	return nil
}

func chunkedQuery(ctx context.Context, query queryFunc, collection domain.EntityType, field string, values []string) ([]domain.Document, error) {
	values = uniqueSorted(values)
	var out []domain.Document
	for start := 0; start < len(values); start += lookupChunkSize {
		end := min(start+lookupChunkSize, len(values))
		docs, err := query(ctx, collection, domain.Predicate{Field: field, Values: values[start:end]})
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
	}
	return out, nil
}

func uniqueSorted(values []string) []string {
	set := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// resolve returns the claim for identity, creating it on behalf of the row in
// slot when the entity is new. existed reports whether the entity was already
// known; added holds the fields this call contributed to a known entity.
func (idx *dedupIndex) resolve(slot int, identity string, existing *domain.Document, fields map[string]any) (c *claim, existed bool, added map[string]any) {
	if c, ok := idx.claims[identity]; ok {
		added = domain.MissingFields(c.fields, fields)
		c.fields = mergeFirstWins(c.fields, fields)
		return c, true, added
	}
	if existing != nil {
		added = domain.MissingFields(existing.Fields, fields)
		c := &claim{key: existing.Key, fields: mergeFirstWins(existing.Fields, fields), fromStore: true, origin: -1}
		idx.claims[identity] = c
		return c, true, added
	}
	c = &claim{key: documentKey(idx.tenantID, identity), fields: mergeFirstWins(nil, fields), origin: slot}
	idx.claims[identity] = c
	return c, false, fields
}

func (idx *dedupIndex) existingCustomer(m customerMatch) *domain.Document {
	for _, d := range idx.customers[m.lookupField+"|"+m.lookupValue] {
		if m.matches(d) {
			d := d
			return &d
		}
	}
	return nil
}

func (idx *dedupIndex) existingAddress(identity string) *domain.Document {
	if d, ok := idx.addresses[identity]; ok {
		return &d
	}
	return nil
}

func (idx *dedupIndex) existingZone(identity string) *domain.Document {
	if d, ok := idx.zones[identity]; ok {
		return &d
	}
	return nil
}

// mergeFirstWins fills base with the non-empty values of incoming it lacks.
func mergeFirstWins(base, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(incoming))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range domain.MissingFields(base, incoming) {
		out[k] = v
	}
	return out
}
