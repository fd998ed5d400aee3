package directory

// Profile is a directory listing as returned by the search endpoint. The
// listing format belongs to the directory, so profiles are kept as generic
// JSON objects; accessors cover the few fields this service reads.
type Profile map[string]any

// ID returns the listing's numeric id.
func (p Profile) ID() (int, bool) {
	switch v := p["id"].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// CanonicalURL returns the listing's public profile page.
func (p Profile) CanonicalURL() string {
	s, _ := p["canonicalUrl"].(string)
	return s
}

// Name returns the listing's display name.
func (p Profile) Name() string {
	s, _ := p["listingName"].(string)
	return s
}

// PersonalStatement returns the listing's short statement, if present.
func (p Profile) PersonalStatement() string {
	s, _ := p["personalStatement"].(string)
	return s
}
