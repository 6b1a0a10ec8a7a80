package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vango-dev/bigpipe/pkg/pagelet"
	"github.com/vango-dev/bigpipe/pkg/render"
)

// BootstrapName is the name of the pagelet that renders the document shell.
const BootstrapName = "bootstrap"

// ErrShellData is returned when the bootstrap pagelet renders without shell data.
var ErrShellData = errors.New("registry: bootstrap pagelet needs render.ShellData")

type statusPage struct {
	code int
}

func (s statusPage) Render(ctx context.Context, in *pagelet.Instance) (string, error) {
	return fmt.Sprintf("<h1>%d %s</h1>\n", s.code, http.StatusText(s.code)), nil
}

type shell struct{}

func (shell) Render(ctx context.Context, in *pagelet.Instance) (string, error) {
	data, ok := in.Data().(render.ShellData)
	if !ok {
		return "", ErrShellData
	}
	var b strings.Builder
	if err := render.Shell(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// DefaultNotFound is used when no discovered pagelet handles /404.
func DefaultNotFound() *pagelet.Definition {
	return pagelet.MustNormalize(pagelet.Module{
		Name:       "404",
		Path:       "/404",
		Mode:       pagelet.ModeRender,
		StatusCode: http.StatusNotFound,
		Producer:   statusPage{code: http.StatusNotFound},
	})
}

// DefaultError is used when no discovered pagelet handles /500.
func DefaultError() *pagelet.Definition {
	return pagelet.MustNormalize(pagelet.Module{
		Name:       "500",
		Path:       "/500",
		Mode:       pagelet.ModeRender,
		StatusCode: http.StatusInternalServerError,
		Producer:   statusPage{code: http.StatusInternalServerError},
	})
}

// DefaultBootstrap renders render.Shell.
func DefaultBootstrap() *pagelet.Definition {
	return pagelet.MustNormalize(pagelet.Module{
		Name:     BootstrapName,
		Producer: shell{},
	})
}
