// Package locale picks a single effective string out of the per-language
// value maps that the upstream store keeps for translatable fields.
package locale

import "sort"

// Fallback is the lookup order applied before falling back to any value.
var Fallback = []string{"es_MX", "es_ES", "en_US"}

// Resolve returns the effective value of a localized map. A key that is
// present wins even if its value is empty. When none of the fallback
// locales is present the value of the lexically smallest key is returned so
// that repeated calls agree. ok is false only for an empty or nil map.
func Resolve(values map[string]string) (value string, ok bool) {
	if len(values) == 0 {
		return "", false
	}
	for _, lang := range Fallback {
		if v, found := values[lang]; found {
			return v, true
		}
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return values[keys[0]], true
}

// ResolvePtr is Resolve for nullable columns.
func ResolvePtr(values map[string]string) *string {
	v, ok := Resolve(values)
	if !ok {
		return nil
	}
	return &v
}
