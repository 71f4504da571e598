package config

import "strings"

// Policy is a single CORS policy snapshot. A Policy held by a Store is never
// mutated after it is published; readers always receive a deep copy.
type Policy struct {
	// AllowedOrigins lists exact origins (scheme://host[:port]) permitted to
	// make cross-origin requests. Matching is case-insensitive.
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowed_origins"`

	// AllowedMethods lists the HTTP methods advertised to browsers.
	AllowedMethods []string `json:"allowedMethods" yaml:"allowed_methods"`

	// AllowedHeaders lists the request headers advertised to browsers.
	AllowedHeaders []string `json:"allowedHeaders" yaml:"allowed_headers"`

	// AllowCredentials is emitted as Access-Control-Allow-Credentials.
	AllowCredentials bool `json:"allowCredentials" yaml:"allow_credentials"`

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int `json:"maxAge" yaml:"max_age"`

	// DevelopmentMode lets unlisted origins through instead of rejecting them.
	DevelopmentMode bool `json:"developmentMode" yaml:"development_mode"`

	// DebugMode enables success and header-completeness diagnostics.
	DebugMode bool `json:"debugMode" yaml:"debug_mode"`

	// Revision is stamped by the Store when the snapshot is published.
	// It is zero for snapshots that were never published.
	Revision uint64 `json:"revision" yaml:"-"`

	// StoreID identifies the Store that published the snapshot. Revisions
	// are only comparable between snapshots with the same non-zero StoreID.
	StoreID uint64 `json:"-" yaml:"-"`
}

// Clone returns a deep copy of the policy.
func (p Policy) Clone() Policy {
	c := p
	c.AllowedOrigins = cloneStrings(p.AllowedOrigins)
	c.AllowedMethods = cloneStrings(p.AllowedMethods)
	c.AllowedHeaders = cloneStrings(p.AllowedHeaders)
	return c
}

// FirstOrigin returns the first allowed origin, or "" if there is none.
func (p Policy) FirstOrigin() string {
	if len(p.AllowedOrigins) == 0 {
		return ""
	}
	return p.AllowedOrigins[0]
}

// AllowsMethod reports whether method is listed, ignoring case.
func (p Policy) AllowsMethod(method string) bool {
	return containsFold(p.AllowedMethods, method)
}

// AllowsHeader reports whether header is listed, ignoring case.
func (p Policy) AllowsHeader(header string) bool {
	return containsFold(p.AllowedHeaders, header)
}

// PolicyUpdate is a partial policy. Nil slices and nil pointers mean "keep
// the current value"; a non-nil empty slice replaces the list with an empty
// one (which then fails validation).
//
// The same type decodes the optional policy YAML file, so a file only needs
// to mention the fields it overrides.
type PolicyUpdate struct {
	AllowedOrigins   []string `json:"allowedOrigins" yaml:"allowed_origins"`
	AllowedMethods   []string `json:"allowedMethods" yaml:"allowed_methods"`
	AllowedHeaders   []string `json:"allowedHeaders" yaml:"allowed_headers"`
	AllowCredentials *bool    `json:"allowCredentials" yaml:"allow_credentials"`
	MaxAge           *int     `json:"maxAge" yaml:"max_age"`
	DevelopmentMode  *bool    `json:"developmentMode" yaml:"development_mode"`
	DebugMode        *bool    `json:"debugMode" yaml:"debug_mode"`
}

// Apply returns base with every field present in u overridden. base is not
// modified.
func (u PolicyUpdate) Apply(base Policy) Policy {
	merged := base.Clone()
	if u.AllowedOrigins != nil {
		merged.AllowedOrigins = cloneStrings(u.AllowedOrigins)
	}
	if u.AllowedMethods != nil {
		merged.AllowedMethods = cloneStrings(u.AllowedMethods)
	}
	if u.AllowedHeaders != nil {
		merged.AllowedHeaders = cloneStrings(u.AllowedHeaders)
	}
	if u.AllowCredentials != nil {
		merged.AllowCredentials = *u.AllowCredentials
	}
	if u.MaxAge != nil {
		merged.MaxAge = *u.MaxAge
	}
	if u.DevelopmentMode != nil {
		merged.DevelopmentMode = *u.DevelopmentMode
	}
	if u.DebugMode != nil {
		merged.DebugMode = *u.DebugMode
	}
	return merged
}

// IsEmpty reports whether the update carries no fields at all.
func (u PolicyUpdate) IsEmpty() bool {
	return u.AllowedOrigins == nil &&
		u.AllowedMethods == nil &&
		u.AllowedHeaders == nil &&
		u.AllowCredentials == nil &&
		u.MaxAge == nil &&
		u.DevelopmentMode == nil &&
		u.DebugMode == nil
}

// Fields returns the JSON names of the fields carried by the update.
func (u PolicyUpdate) Fields() []string {
	var fields []string
	if u.AllowedOrigins != nil {
		fields = append(fields, "allowedOrigins")
	}
	if u.AllowedMethods != nil {
		fields = append(fields, "allowedMethods")
	}
	if u.AllowedHeaders != nil {
		fields = append(fields, "allowedHeaders")
	}
	if u.AllowCredentials != nil {
		fields = append(fields, "allowCredentials")
	}
	if u.MaxAge != nil {
		fields = append(fields, "maxAge")
	}
	if u.DevelopmentMode != nil {
		fields = append(fields, "developmentMode")
	}
	if u.DebugMode != nil {
		fields = append(fields, "debugMode")
	}
	return fields
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	c := make([]string, len(s))
	copy(c, s)
	return c
}

func containsFold(list []string, item string) bool {
	for _, s := range list {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}
