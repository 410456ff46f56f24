package domain

import (
	"fmt"
	"strings"
)

// DedupStrategy decides which customer attributes form the merge identity.
type DedupStrategy string

const (
	DedupByPhone      DedupStrategy = "phone"
	DedupByPhoneEmail DedupStrategy = "phone_email"
	DedupByPhoneName  DedupStrategy = "phone_name"
)

func ParseDedupStrategy(s string) (DedupStrategy, error) {
	switch v := DedupStrategy(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return DedupByPhone, nil
	case DedupByPhone, DedupByPhoneEmail, DedupByPhoneName:
		return v, nil
	default:
		return "", fmt.Errorf("unknown dedup strategy %q", s)
	}
}
