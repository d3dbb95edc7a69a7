// Package content holds the static lesson texts and food catalog. Both are
// loaded once at startup, validated, and never mutated afterwards.
package content

import (
	_ "embed"
	"fmt"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/msomdec/diabot/internal/domain"
)

//go:embed lessons.yaml
var lessonsYAML []byte

//go:embed foods.yaml
var foodsYAML []byte

// Ids end up inside callback tokens, so they are short and token-safe.
var idPattern = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

// Localized is a text available in every supported language.
type Localized map[domain.Language]string

func (t Localized) In(lang domain.Language) string {
	if s, ok := t[lang]; ok {
		return s
	}
	return t[domain.DefaultLanguage]
}

// Lesson is an ordered sequence of localized pages.
type Lesson struct {
	ID    string
	title Localized
	pages []Localized
}

func (l *Lesson) Title(lang domain.Language) string { return l.title.In(lang) }
func (l *Lesson) PageCount() int                    { return len(l.pages) }

// Page returns page i (0-based).
func (l *Lesson) Page(lang domain.Language, i int) (string, bool) {
	if i < 0 || i >= len(l.pages) {
		return "", false
	}
	return l.pages[i].In(lang), true
}

// Food is a catalog item with its carbohydrate content.
type Food struct {
	ID           string
	Category     string
	CarbsPer100g float64
	name         Localized
}

func (f *Food) Name(lang domain.Language) string { return f.name.In(lang) }

type Category struct {
	ID    string
	name  Localized
	items []*Food
}

func (c *Category) Name(lang domain.Language) string { return c.name.In(lang) }
func (c *Category) Items() []*Food                   { return slices.Clone(c.items) }

// Library is the immutable content set.
type Library struct {
	lessons    []*Lesson
	lessonByID map[string]*Lesson
	categories []*Category
	categoryBy map[string]*Category
	foodByID   map[string]*Food
}

func (l *Library) Lessons() []*Lesson { return slices.Clone(l.lessons) }

func (l *Library) Lesson(id string) (*Lesson, bool) {
	lesson, ok := l.lessonByID[id]
	return lesson, ok
}

func (l *Library) Categories() []*Category { return slices.Clone(l.categories) }

func (l *Library) Category(id string) (*Category, bool) {
	c, ok := l.categoryBy[id]
	return c, ok
}

func (l *Library) Food(id string) (*Food, bool) {
	f, ok := l.foodByID[id]
	return f, ok
}

// Load parses the embedded content.
func Load() (*Library, error) {
	return Parse(lessonsYAML, foodsYAML)
}

type rawText map[string]string

type rawLessons struct {
	Lessons []struct {
		ID    string    `yaml:"id"`
		Title rawText   `yaml:"title"`
		Pages []rawText `yaml:"pages"`
	} `yaml:"lessons"`
}

type rawFoods struct {
	Categories []struct {
		ID    string  `yaml:"id"`
		Name  rawText `yaml:"name"`
		Items []struct {
			ID    string  `yaml:"id"`
			Carbs float64 `yaml:"carbs"`
			Name  rawText `yaml:"name"`
		} `yaml:"items"`
	} `yaml:"categories"`
}

// Parse builds a Library and rejects content that would break a menu:
// bad or duplicate ids, missing translations, empty lessons or categories.
func Parse(lessonsData, foodsData []byte) (*Library, error) {
	var rl rawLessons
	if err := yaml.Unmarshal(lessonsData, &rl); err != nil {
		return nil, fmt.Errorf("parse lessons: %w", err)
	}
	var rf rawFoods
	if err := yaml.Unmarshal(foodsData, &rf); err != nil {
		return nil, fmt.Errorf("parse foods: %w", err)
	}

	lib := &Library{
		lessonByID: map[string]*Lesson{},
		categoryBy: map[string]*Category{},
		foodByID:   map[string]*Food{},
	}

	for _, raw := range rl.Lessons {
		if err := checkID("lesson", raw.ID, lib.lessonByID); err != nil {
			return nil, err
		}
		title, err := localize("lesson "+raw.ID+" title", raw.Title)
		if err != nil {
			return nil, err
		}
		if len(raw.Pages) == 0 {
			return nil, fmt.Errorf("%w: lesson %q has no pages", domain.ErrInvalidInput, raw.ID)
		}
		lesson := &Lesson{ID: raw.ID, title: title}
		for i, p := range raw.Pages {
			page, err := localize(fmt.Sprintf("lesson %s page %d", raw.ID, i+1), p)
			if err != nil {
				return nil, err
			}
			lesson.pages = append(lesson.pages, page)
		}
		lib.lessons = append(lib.lessons, lesson)
		lib.lessonByID[lesson.ID] = lesson
	}

	for _, raw := range rf.Categories {
		if err := checkID("category", raw.ID, lib.categoryBy); err != nil {
			return nil, err
		}
		name, err := localize("category "+raw.ID, raw.Name)
		if err != nil {
			return nil, err
		}
		if len(raw.Items) == 0 {
			return nil, fmt.Errorf("%w: category %q has no items", domain.ErrInvalidInput, raw.ID)
		}
		cat := &Category{ID: raw.ID, name: name}
		for _, ri := range raw.Items {
			if err := checkID("food", ri.ID, lib.foodByID); err != nil {
				return nil, err
			}
			if ri.Carbs < 0 || ri.Carbs > 100 {
				return nil, fmt.Errorf("%w: food %q carbs %.1f outside 0..100 g", domain.ErrInvalidInput, ri.ID, ri.Carbs)
			}
			fname, err := localize("food "+ri.ID, ri.Name)
			if err != nil {
				return nil, err
			}
			food := &Food{ID: ri.ID, Category: raw.ID, CarbsPer100g: ri.Carbs, name: fname}
			cat.items = append(cat.items, food)
			lib.foodByID[food.ID] = food
		}
		lib.categories = append(lib.categories, cat)
		lib.categoryBy[cat.ID] = cat
	}

	if len(lib.lessons) == 0 || len(lib.categories) == 0 {
		return nil, fmt.Errorf("%w: content needs at least one lesson and one food category", domain.ErrInvalidInput)
	}
	return lib, nil
}

func checkID[T any](kind, id string, seen map[string]T) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %s id %q must match %s", domain.ErrInvalidInput, kind, id, idPattern)
	}
	if _, dup := seen[id]; dup {
		return fmt.Errorf("%w: duplicate %s id %q", domain.ErrInvalidInput, kind, id)
	}
	return nil
}

func localize(what string, raw rawText) (Localized, error) {
	out := make(Localized, len(domain.Languages))
	for _, lang := range domain.Languages {
		s := raw[string(lang)]
		if s == "" {
			return nil, fmt.Errorf("%w: %s is missing %q text", domain.ErrInvalidInput, what, lang)
		}
		out[lang] = s
	}
	return out, nil
}
