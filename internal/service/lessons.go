package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/msomdec/diabot/internal/content"
	"github.com/msomdec/diabot/internal/domain"
)

const (
	scratchLesson = "lesson"
	scratchPage   = "page"
)

// LessonsModule lets the user read lessons page by page.
type LessonsModule struct{}

func (LessonsModule) ID() domain.Module { return domain.ModuleLessons }

func (LessonsModule) ShowMain(t *Turn) *domain.Reply {
	return lessonList(t, t.T("lessons.main"))
}

func lessonList(t *Turn, text string) *domain.Reply {
	var rows [][]domain.Button
	for _, l := range t.Library().Lessons() {
		rows = append(rows, []domain.Button{{Label: l.Title(t.Lang()), Token: domain.LessonSelect{LessonID: l.ID}.Token()}})
	}
	rows = append(rows, t.BackRow())
	return &domain.Reply{Text: text, Inline: rows}
}

func lessonPage(t *Turn, l *content.Lesson, page int) *domain.Reply {
	body, _ := l.Page(t.Lang(), page)

	var nav []domain.Button
	if page > 0 {
		nav = append(nav, domain.Button{Label: t.T("lessons.button.prev"), Token: domain.LessonNav{Action: domain.NavPrev}.Token()})
	}
	if page < l.PageCount()-1 {
		nav = append(nav, domain.Button{Label: t.T("lessons.button.next"), Token: domain.LessonNav{Action: domain.NavNext}.Token()})
	}

	var rows [][]domain.Button
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows,
		[]domain.Button{{Label: t.T("lessons.button.list"), Token: domain.LessonNav{Action: domain.NavList}.Token()}},
		t.BackRow(),
	)
	return &domain.Reply{
		Text:   t.T("lessons.page", l.Title(t.Lang()), body, page+1, l.PageCount()),
		Inline: rows,
	}
}

// reading returns the open lesson and page from scratch.
func reading(t *Turn) (*content.Lesson, int, bool) {
	id, _ := t.Session.ScratchValue(scratchLesson)
	l, ok := t.Library().Lesson(id)
	if !ok {
		return nil, 0, false
	}
	raw, _ := t.Session.ScratchValue(scratchPage)
	page, err := strconv.Atoi(raw)
	if err != nil || page < 0 || page >= l.PageCount() {
		return nil, 0, false
	}
	return l, page, true
}

func openPage(t *Turn, l *content.Lesson, page int) *domain.Reply {
	t.Session.SetPhase(domain.PhaseAwaitingLessonNav)
	t.Session.SetScratch(scratchLesson, l.ID)
	t.Session.SetScratch(scratchPage, strconv.Itoa(page))
	return lessonPage(t, l, page)
}

func backToList(t *Turn) *domain.Reply {
	t.Session.SetPhase(domain.PhaseLessonsMain)
	t.Session.ClearScratch()
	return lessonList(t, t.T("lessons.main"))
}

func (m LessonsModule) HandleCallback(_ context.Context, t *Turn, cb domain.Callback) (*domain.Reply, error) {
	if _, ok := cb.(domain.Back); ok {
		return t.ToTopMenu(), nil
	}

	switch t.Session.Phase {
	case domain.PhaseLessonsMain:
		sel, ok := cb.(domain.LessonSelect)
		if !ok {
			break
		}
		l, ok := t.Library().Lesson(sel.LessonID)
		if !ok {
			return lessonList(t, t.T("lessons.use_buttons")), nil
		}
		return openPage(t, l, 0), nil

	case domain.PhaseAwaitingLessonNav:
		nav, ok := cb.(domain.LessonNav)
		if !ok {
			break
		}
		if nav.Action == domain.NavList {
			return backToList(t), nil
		}
		l, page, ok := reading(t)
		if !ok {
			return backToList(t), nil
		}
		switch nav.Action {
		case domain.NavNext:
			page = min(page+1, l.PageCount()-1)
		case domain.NavPrev:
			page = max(page-1, 0)
		}
		return openPage(t, l, page), nil

	default:
		return nil, fmt.Errorf("%w: %s cannot handle %q", domain.ErrPhaseMismatch, m.ID(), t.Session.Phase)
	}
	return nil, fmt.Errorf("%w: %s in %q", domain.ErrUnhandledEvent, cb.Token(), t.Session.Phase)
}

func (m LessonsModule) HandleText(_ context.Context, t *Turn, text string) (*domain.Reply, error) {
	if t.IsBackLabel(text) {
		return t.ToTopMenu(), nil
	}

	switch t.Session.Phase {
	case domain.PhaseLessonsMain:
		return lessonList(t, t.T("lessons.use_buttons")), nil
	case domain.PhaseAwaitingLessonNav:
		l, page, ok := reading(t)
		if !ok {
			return backToList(t), nil
		}
		reply := lessonPage(t, l, page)
		reply.Text = t.T("lessons.use_buttons")
		return reply, nil
	}
	return nil, fmt.Errorf("%w: %s cannot handle %q", domain.ErrPhaseMismatch, m.ID(), t.Session.Phase)
}
