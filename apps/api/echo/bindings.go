package echoapi

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/careercompass/core"
	"github.com/trezcool/careercompass/core/course"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind parses `?ordering=field,-other` (a leading "-" sorts descending).
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

// isUUID tells an ID path param apart from a slug.
func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// courseFilter resolves a course path param, which is either its ID or its slug.
func courseFilter(idOrSlug string) course.GetFilter {
	if isUUID(idOrSlug) {
		return course.GetFilter{ID: idOrSlug}
	}
	return course.GetFilter{Slug: idOrSlug}
}
