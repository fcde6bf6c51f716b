package utils

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/geocoder89/tourhub/internal/query"
)

// BuildListCacheKey renders params in a canonical order so equivalent
// queries share one entry: "tours:list:v1:limit=5&price[gte]=100".
func BuildListCacheKey(resource string, p query.Params) string {
	pairs := make([]string, 0, len(p))
	flatten("", p, &pairs)
	sort.Strings(pairs)

	return resource + ":list:v1:" + strings.Join(pairs, "&")
}

func flatten(prefix string, m map[string]any, out *[]string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "[" + k + "]"
		}

		switch t := v.(type) {
		case map[string]any:
			flatten(key, t, out)
		case query.Params:
			flatten(key, t, out)
		case []any:
			vals := make([]string, len(t))
			for i, item := range t {
				vals[i] = url.QueryEscape(fmt.Sprint(item))
			}
			sort.Strings(vals)
			*out = append(*out, url.QueryEscape(key)+"="+strings.Join(vals, ","))
		default:
			*out = append(*out, url.QueryEscape(key)+"="+url.QueryEscape(fmt.Sprint(t)))
		}
	}
}
