// Package bigpipe streams pages made of independently rendered pagelets.
//
// A page is a pagelet with a path. Its children render concurrently and are
// written into the same response as they become ready, so slow fragments do
// not hold back the rest of the page:
//
//	p, err := bigpipe.New(bigpipe.Config{
//	    Pagelets: []pagelet.Module{{
//	        Name: "home",
//	        Path: "/",
//	        View: "home.html",
//	        Children: []pagelet.Module{
//	            {Name: "news", View: "news.html", Producer: newsFeed{}},
//	            {Name: "weather", View: "weather.md", Producer: weather{}},
//	        },
//	    }},
//	    Views: os.DirFS("views"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(p.Listen(ctx, ":8080"))
//
// Children are written in completion order (async mode), in declaration
// order (pipeline mode) or merged into the parent before anything is sent
// (render mode). Requests with no_pagelet_js=1, and HTTP/1.0 clients, always
// get a merged page.
package bigpipe
