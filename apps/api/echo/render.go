package echoapi

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/rmtbiph/ratemyteacher/core"
	"github.com/rmtbiph/ratemyteacher/core/access"
	appfs "github.com/rmtbiph/ratemyteacher/fs"
)

const (
	webTemplatesDir = "templates/web"
	layoutFile      = "_layout.gohtml"
)

// view is the data every page template receives.
type view struct {
	AppName string
	Title   string
	Path    string
	User    *access.Principal
	Admin   string // signed-in admin username, admin pages only
	CSRF    string
	Error   string
	Message string
	Data    interface{}
}

type templateRenderer struct {
	pages map[string]*template.Template // {"teachers": ..., "admin/teachers": ...}
}

var _ echo.Renderer = (*templateRenderer)(nil)

// newTemplateRenderer parses every page under templates/web (and templates/web/admin) together
// with the layout of its directory. Embedded templates failing to parse is a programming error.
func newTemplateRenderer(conf *core.Config) *templateRenderer {
	r := &templateRenderer{pages: make(map[string]*template.Template)}
	for _, dir := range []string{"", "admin"} {
		r.mustParseDir(dir, conf)
	}
	return r
}

func (r *templateRenderer) mustParseDir(dir string, conf *core.Config) {
	base := path.Join(webTemplatesDir, dir)
	fps, err := fs.Glob(appfs.FS, path.Join(base, "*.gohtml"))
	if err != nil {
		panic(errors.Wrapf(err, "listing templates of %s", base))
	}

	for _, fp := range fps {
		fname := path.Base(fp)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		tmpl := template.New(fname).Funcs(templateFuncs(conf))
		if conf.Debug || conf.TestMode {
			tmpl = tmpl.Option("missingkey=error")
		}
		tmpl = template.Must(tmpl.ParseFS(appfs.FS, path.Join(base, layoutFile), fp))
		r.pages[path.Join(dir, strings.TrimSuffix(fname, ".gohtml"))] = tmpl
	}
}

func (r *templateRenderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return errors.Errorf("template %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, "layout", data)
}

func templateFuncs(conf *core.Config) template.FuncMap {
	return template.FuncMap{
		"appName": func() string { return conf.AppName },
		"ago":     func(t time.Time) string { return humanize.Time(t) },
		"date":    func(t time.Time) string { return t.Format("Jan 2, 2006") },
		"plural":  english.Plural,
		"avg": func(v null.Float64) string {
			if !v.Valid {
				return "–"
			}
			return strconv.FormatFloat(v.Float64, 'f', 1, 64)
		},
		"pct": func(v null.Float64) string {
			if !v.Valid {
				return "–"
			}
			return fmt.Sprintf("%.0f%%", v.Float64)
		},
		"percent": func(f float64) string { return fmt.Sprintf("%.0f", f) },
		"seq": func(from, to int) []int {
			var out []int
			for i := from; i <= to; i++ {
				out = append(out, i)
			}
			return out
		},
		"add":  func(a, b int) int { return a + b },
		"join": strings.Join,
		"pageURL": func(p string, q url.Values, page int) string {
			v := make(url.Values, len(q))
			for k, vals := range q {
				v[k] = append([]string(nil), vals...)
			}
			v.Set("page", strconv.Itoa(page))
			return p + "?" + v.Encode()
		},
		"score": func(quality int) string {
			return strings.Repeat("★", quality) + strings.Repeat("☆", 5-quality)
		},
	}
}

// render renders the named page inside its layout.
func (s *server) render(ctx echo.Context, code int, name, title string, data interface{}) error {
	return ctx.Render(code, name, s.newView(ctx, title, data))
}

func (s *server) newView(ctx echo.Context, title string, data interface{}) view {
	csrf, _ := ctx.Get(csrfContextKey).(string)
	adminName, _ := ctx.Get(adminContextKey).(string)
	return view{
		AppName: s.deps.Conf.AppName,
		Title:   title,
		Path:    ctx.Request().URL.Path,
		User:    principal(ctx),
		Admin:   adminName,
		CSRF:    csrf,
		Error:   ctx.QueryParam("error"),
		Message: ctx.QueryParam("message"),
		Data:    data,
	}
}
