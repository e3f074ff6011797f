package sites

import "net/url"

// evalString reads a string field out of a page-evaluation result object.
func evalString(fields map[string]interface{}, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// absoluteURL resolves href against base. Already-absolute hrefs pass
// through untouched; unparseable ones come back empty.
func absoluteURL(base, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return b.ResolveReference(ref).String()
}
