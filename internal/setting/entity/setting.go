package entity

import "time"

// Setting represents one configuration row in app.app_settings, keyed by
// (section_path, setting_name). Confidential settings never leave the server
// through the cached read path.
type Setting struct {
	SectionPath     string    `db:"section_path" json:"section_path"`
	SettingName     string    `db:"setting_name" json:"setting_name"`
	Value           string    `db:"value" json:"value"`
	DefaultValue    string    `db:"default_value" json:"default_value"`
	Confidentiality bool      `db:"confidentiality" json:"confidentiality"`
	Description     string    `db:"description" json:"description"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// EffectiveValue returns the stored value, falling back to the default when
// the value is empty.
func (s Setting) EffectiveValue() string {
	if s.Value != "" {
		return s.Value
	}
	return s.DefaultValue
}
