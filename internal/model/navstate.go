package model

// PathEntry is one breadcrumb step taken through the preset tree.
type PathEntry struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// NavState is the customer's position within the preset tree, persisted per
// chat so it survives reloads. The last path entry's id always equals
// CurrentPresetID; an empty path means CurrentPresetID is nil (root).
type NavState struct {
	CurrentPresetID *string     `json:"current_preset_id"`
	ShowPresets     bool        `json:"show_presets"`
	Path            []PathEntry `json:"preset_path"`
}

// RootNavState is the fresh state used on first load and whenever
// restoration self-heals after the stored node went stale.
func RootNavState() NavState {
	return NavState{CurrentPresetID: nil, ShowPresets: true, Path: nil}
}
