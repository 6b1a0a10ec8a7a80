// Package render produces the markup a pipe writes to the wire.
//
// A progressive response is made of three kinds of frames:
//
//   - the shell: document head with the page dependencies and the bootstrap
//     state, followed by the opening body tag (Shell);
//   - fragments: one per child pagelet, carrying its markup and metadata
//     (Fragment);
//   - the close frame that ends the document (CloseFrame).
//
// Non-progressive responses instead merge child markup into the parent's
// data-pagelet placeholders with Inject and write the document at once.
package render
