package conversation

import (
	"fmt"
	"strings"
)

// Field is one free-form key/value entry of the organizational profile.
type Field struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// OrgContext is the optional organizational profile given at start.
type OrgContext struct {
	CompanyName         string  `json:"company_name,omitempty" yaml:"company_name"`
	Industry            string  `json:"industry,omitempty" yaml:"industry"`
	StrategicGoals      string  `json:"strategic_goals,omitempty" yaml:"strategic_goals"`
	InternalConstraints string  `json:"internal_constraints,omitempty" yaml:"internal_constraints"`
	TargetAudience      string  `json:"target_audience,omitempty" yaml:"target_audience"`
	CommunicationTone   string  `json:"communication_tone,omitempty" yaml:"communication_tone"`
	Description         string  `json:"description,omitempty" yaml:"description"`
	CustomFields        []Field `json:"custom_fields,omitempty" yaml:"custom_fields"`
	DocumentCount       int     `json:"document_count,omitempty" yaml:"document_count"`
}

// IsZero reports whether no field carries content.
func (c OrgContext) IsZero() bool {
	return len(c.entries()) == 0 && c.DocumentCount == 0
}

// sanitized replaces invalid UTF-8 in every text field.
func (c OrgContext) sanitized() OrgContext {
	out := c
	for _, f := range []*string{
		&out.CompanyName, &out.Industry, &out.StrategicGoals, &out.InternalConstraints,
		&out.TargetAudience, &out.CommunicationTone, &out.Description,
	} {
		*f = validUTF8(*f)
	}
	if len(c.CustomFields) > 0 {
		out.CustomFields = make([]Field, len(c.CustomFields))
		for i, f := range c.CustomFields {
			out.CustomFields[i] = Field{Key: validUTF8(f.Key), Value: validUTF8(f.Value)}
		}
	}
	return out
}

type orgEntry struct {
	label string
	value string
}

func (c OrgContext) entries() []orgEntry {
	candidates := []orgEntry{
		{"Company", c.CompanyName},
		{"Industry", c.Industry},
		{"Strategic goals", c.StrategicGoals},
		{"Internal constraints", c.InternalConstraints},
		{"Target audience", c.TargetAudience},
		{"Communication tone", c.CommunicationTone},
		{"Description", c.Description},
	}
	for _, f := range c.CustomFields {
		candidates = append(candidates, orgEntry{strings.TrimSpace(f.Key), f.Value})
	}

	out := candidates[:0]
	for _, e := range candidates {
		e.value = strings.TrimSpace(e.value)
		if e.label != "" && e.value != "" {
			out = append(out, e)
		}
	}
	return out
}

// Format renders the labeled preamble, or "" when the profile is empty.
func (c OrgContext) Format() string {
	if c.IsZero() {
		return ""
	}

	var b strings.Builder
	b.WriteString("=== ORGANIZATIONAL CONTEXT ===\n")
	for _, e := range c.entries() {
		fmt.Fprintf(&b, "- %s: %s\n", e.label, e.value)
	}
	if c.DocumentCount > 0 {
		fmt.Fprintf(&b, "- Reference documents available: %d\n", c.DocumentCount)
	}
	b.WriteString("IMPORTANT: you MUST take this context into account in every answer. " +
		"Reference the applicable fields and say which part of the context influenced your position.")
	return b.String()
}
