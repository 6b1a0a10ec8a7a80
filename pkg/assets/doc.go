// Package assets catalogs the stylesheets and scripts each page depends on and
// serves the compiled files.
//
// A build step writes a manifest.json mapping source names to fingerprinted
// names:
//
//	{
//	  "app.css": "app.5f2e81c9.css",
//	  "news.js": "news.0d13aa42.js"
//	}
//
// Catalog resolves every pagelet's declared assets through that manifest at
// discovery time, so a request only does a map lookup:
//
//	manifest, _ := assets.Load("dist/manifest.json")
//	catalog := assets.NewCatalog(assets.NewResolver(manifest, "/dist/"))
//	deps := catalog.Page(inst) // {CSS: [/dist/app.5f2e81c9.css], JS: [...]}
//
// Compiled files are read through a Source: a local directory (FSSource) or
// an S3 bucket (S3Source).
package assets
