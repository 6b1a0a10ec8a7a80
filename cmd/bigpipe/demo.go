package main

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/vango-dev/bigpipe/pkg/pagelet"
)

// demoPagelets is the page set the server ships with: a news front page
// whose children finish at different times, and an article page in
// pipeline mode.
func demoPagelets() []pagelet.Module {
	return []pagelet.Module{
		{
			Name: "front",
			Path: "/",
			Mode: pagelet.ModeAsync,
			Producer: static(`<main>
  <section data-pagelet="headlines"></section>
  <aside data-pagelet="weather"></aside>
  <aside data-pagelet="trending"></aside>
</main>`),
			Children: []pagelet.Module{
				{Name: "headlines", Producer: slow{markup: "<ol><li>Markets open higher</li><li>Rain expected</li></ol>", delay: 50 * time.Millisecond}},
				{Name: "weather", Producer: slow{markup: "<p>12&deg;C, light rain</p>", delay: 300 * time.Millisecond}},
				{Name: "trending", Producer: slow{markup: "<ul><li>#bigpipe</li></ul>", delay: 150 * time.Millisecond}},
			},
		},
		{
			Name: "article",
			Path: "/article/:id:int",
			Mode: pagelet.ModePipeline,
			Producer: article{},
			Children: []pagelet.Module{
				{Name: "body", Producer: slow{markup: "<p>Lorem ipsum.</p>", delay: 100 * time.Millisecond}},
				{Name: "comments", Producer: slow{markup: "<p>No comments yet.</p>", delay: 20 * time.Millisecond}},
			},
		},
	}
}

type static string

func (s static) Render(ctx context.Context, in *pagelet.Instance) (string, error) {
	return string(s), nil
}

// slow simulates a backend call.
type slow struct {
	markup string
	delay  time.Duration
}

func (s slow) Render(ctx context.Context, in *pagelet.Instance) (string, error) {
	select {
	case <-time.After(s.delay):
		return s.markup, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type article struct{}

func (article) Render(ctx context.Context, in *pagelet.Instance) (string, error) {
	return fmt.Sprintf(`<article><h1>Article %s</h1><div data-pagelet="body"></div><div data-pagelet="comments"></div></article>`,
		html.EscapeString(in.Param("id"))), nil
}
