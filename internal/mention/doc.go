// Package mention discovers work units on the mentions surface.
//
// Extraction is split from navigation: ExtractMentions and AncestorLinks are
// pure functions over rendered HTML, and Source wires them to a browser page
// on each poll tick. ParseRequest reads the free-text payload of a mention to
// choose the processing path.
package mention
