package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rmtbiph/ratemyteacher/core"
)

var orderingParam = "ordering"

// Ordering binds `?ordering=-created_at,quality` (a leading "-" sorts descending).
type Ordering struct {
	Raw       string
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := strings.TrimSpace(ctx.QueryParam(orderingParam))
	if val == "" {
		return
	}
	ord.Raw = val

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}
