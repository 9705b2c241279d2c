package query

import "strings"

// CacheKey substitutes every "{name}" placeholder in pattern with the
// string form of the matching argument. Placeholders without a matching
// argument stay literal; arguments not referenced are ignored.
func CacheKey(pattern string, args Arguments) string {
	key := pattern
	for _, name := range args.Keys() {
		key = strings.ReplaceAll(key, "{"+name+"}", args[name].String())
	}
	return key
}
