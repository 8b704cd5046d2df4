package util

import (
	"errors"
	"strings"
)

// Delimiter separates the tenant from the logical key inside a storage key.
const Delimiter = ":"

var (
	ErrEmptySegment     = errors.New("must not be empty")
	ErrDelimiterPresent = errors.New("must not contain " + `"` + Delimiter + `"`)
	ErrNotStorageKey    = errors.New("not a tenant-scoped storage key")
)

// ValidateSegment reports whether s can be used as a tenant or logical key.
// Rejecting the delimiter keeps StorageKey injective.
func ValidateSegment(s string) error {
	if s == "" {
		return ErrEmptySegment
	}
	if strings.Contains(s, Delimiter) {
		return ErrDelimiterPresent
	}
	return nil
}

// StorageKey returns "<tenant>:<key>". Callers validate both segments first.
func StorageKey(tenant, key string) string {
	return tenant + Delimiter + key
}

// TenantPrefix is the store-level listing prefix for one tenant.
func TenantPrefix(tenant string) string {
	return tenant + Delimiter
}

// SplitStorageKey splits on the first delimiter. Both halves must be non-empty.
func SplitStorageKey(storageKey string) (tenant, key string, err error) {
	i := strings.Index(storageKey, Delimiter)
	if i <= 0 || i == len(storageKey)-len(Delimiter) {
		return "", "", ErrNotStorageKey
	}
	return storageKey[:i], storageKey[i+len(Delimiter):], nil
}

// TrimTenant strips the tenant prefix from a listed storage key.
// ok is false when storageKey is outside the tenant's keyspace.
func TrimTenant(tenant, storageKey string) (key string, ok bool) {
	p := TenantPrefix(tenant)
	if !strings.HasPrefix(storageKey, p) || len(storageKey) == len(p) {
		return "", false
	}
	return storageKey[len(p):], true
}
