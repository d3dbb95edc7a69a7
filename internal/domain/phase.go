package domain

// Phase is where a user currently is in the menu tree. The string value is persisted.
type Phase string

const (
	PhaseLanguageChoice Phase = "language_choice"
	PhaseTopMenu        Phase = "top_menu"
	PhaseSettings       Phase = "settings"

	PhaseGlucoseMain          Phase = "glucose_main"
	PhaseGlucoseTypeChoice    Phase = "glucose_type_choice"
	PhaseAwaitingGlucoseValue Phase = "glucose_awaiting_value"

	PhaseBreadUnitsMain     Phase = "bread_units_main"
	PhaseFoodCategoryChoice Phase = "bread_units_category"
	PhaseFoodItemChoice     Phase = "bread_units_item"
	PhaseAwaitingGramCount  Phase = "bread_units_awaiting_grams"

	PhaseLessonsMain       Phase = "lessons_main"
	PhaseAwaitingLessonNav Phase = "lessons_reading"
)

// Module identifies the feature area that owns a group of phases.
type Module string

const (
	ModuleCore       Module = "core"
	ModuleSettings   Module = "settings"
	ModuleGlucose    Module = "glucose"
	ModuleBreadUnits Module = "bread_units"
	ModuleLessons    Module = "lessons"
)

var phaseOwners = map[Phase]Module{
	PhaseLanguageChoice: ModuleCore,
	PhaseTopMenu:        ModuleCore,

	PhaseSettings: ModuleSettings,

	PhaseGlucoseMain:          ModuleGlucose,
	PhaseGlucoseTypeChoice:    ModuleGlucose,
	PhaseAwaitingGlucoseValue: ModuleGlucose,

	PhaseBreadUnitsMain:     ModuleBreadUnits,
	PhaseFoodCategoryChoice: ModuleBreadUnits,
	PhaseFoodItemChoice:     ModuleBreadUnits,
	PhaseAwaitingGramCount:  ModuleBreadUnits,

	PhaseLessonsMain:       ModuleLessons,
	PhaseAwaitingLessonNav: ModuleLessons,
}

// OwnerOf returns the module owning the phase. ok is false for phases
// that are not part of the menu tree (for example a value written by an
// older build).
func OwnerOf(p Phase) (Module, bool) {
	m, ok := phaseOwners[p]
	return m, ok
}

// Valid reports whether the phase is reachable from the top menu.
func (p Phase) Valid() bool {
	_, ok := phaseOwners[p]
	return ok
}

// MainPhase returns the entry phase of a feature module.
func MainPhase(m Module) (Phase, bool) {
	switch m {
	case ModuleSettings:
		return PhaseSettings, true
	case ModuleGlucose:
		return PhaseGlucoseMain, true
	case ModuleBreadUnits:
		return PhaseBreadUnitsMain, true
	case ModuleLessons:
		return PhaseLessonsMain, true
	case ModuleCore:
		return PhaseTopMenu, true
	}
	return "", false
}

// AwaitsText reports whether the phase expects free-text input, such as a
// number, rather than a button tap.
func (p Phase) AwaitsText() bool {
	return p == PhaseAwaitingGlucoseValue || p == PhaseAwaitingGramCount
}
