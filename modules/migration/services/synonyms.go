package services

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
)

// headerSynonyms lists known spellings of each field in the exports we see
// (Portuguese, Spanish and English).
var headerSynonyms = map[string][]string{
	domain.FieldCustomerName: {
		"nome", "nome cliente", "nome do cliente", "cliente", "razao social", "nome completo",
		"name", "customer", "customer name", "full name", "nombre", "nombre cliente",
	},
	domain.FieldCustomerPhone: {
		"telefone", "fone", "celular", "whatsapp", "tel", "telefone cliente", "telefone celular",
		"phone", "phone number", "mobile", "cell", "telefono", "movil",
	},
	domain.FieldCustomerEmail: {
		"email", "e mail", "correio eletronico", "email cliente", "mail", "correo", "correo electronico",
	},
	domain.FieldCustomerDocument: {
		"cpf", "cnpj", "cpf cnpj", "documento", "rg", "document", "tax id", "dni", "nif",
	},
	domain.FieldCustomerNotes: {
		"observacao", "observacoes", "obs", "nota", "notas", "anotacoes", "comentario",
		"notes", "note", "comments", "remarks", "observaciones",
	},
	domain.FieldAddressStreet: {
		"rua", "logradouro", "endereco", "avenida", "endereco entrega",
		"street", "address", "street address", "calle", "direccion",
	},
	domain.FieldAddressNumber: {
		"numero", "num", "n", "nro", "numero endereco", "number", "street number", "house number",
	},
	domain.FieldAddressComplement: {
		"complemento", "compl", "apto", "apartamento", "bloco", "complement", "apartment", "unit", "suite",
	},
	domain.FieldAddressNeighborhood: {
		"bairro", "bairro entrega", "setor", "neighborhood", "neighbourhood", "district", "barrio", "colonia",
	},
	domain.FieldAddressCity: {
		"cidade", "municipio", "localidade", "city", "town", "ciudad",
	},
	domain.FieldAddressZip: {
		"cep", "codigo postal", "zip", "zip code", "zipcode", "postal code", "postcode", "cp",
	},
	domain.FieldAddressReference: {
		"referencia", "ponto de referencia", "ponto referencia", "reference", "landmark", "referencia entrega",
	},
	domain.FieldDeliveryFeePrice: {
		"taxa", "taxa entrega", "taxa de entrega", "frete", "valor entrega", "valor frete",
		"delivery fee", "fee", "shipping", "shipping fee", "tarifa", "costo envio",
	},
}

// normalizedSynonyms holds headerSynonyms pre-normalized.
var normalizedSynonyms = func() map[string][][]string {
	out := make(map[string][][]string, len(headerSynonyms))
	for field, synonyms := range headerSynonyms {
		for _, s := range synonyms {
			out[field] = append(out[field], tokenize(s))
		}
	}
	return out
}()

var stopwords = map[string]struct{}{
	"de": {}, "do": {}, "da": {}, "dos": {}, "das": {}, "del": {}, "la": {}, "el": {}, "the": {}, "of": {},
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// tokenize lowercases, strips diacritics and splits on anything that is not a
// letter or digit. Stopwords are dropped unless they are the only token.
func tokenize(s string) []string {
	s = strings.ToLower(stripDiacritics(s))
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	if len(tokens) == 0 {
		return fields
	}
	return tokens
}

func normalizeHeader(h string) string {
	return strings.Join(tokenize(h), " ")
}
