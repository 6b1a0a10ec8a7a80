// Package view compiles pagelet views into renderers.
//
// A Set dispatches on file extension: .html and .tmpl files are html/template
// templates, .md files are Markdown run through text/template first, converted
// with goldmark and sanitized with bluemonday. Compiled views are cached
// unless caching is disabled (development).
//
// Placeholders for children are plain elements carrying data-pagelet:
//
//	<main>
//	  <section data-pagelet="news"></section>
//	</main>
package view
