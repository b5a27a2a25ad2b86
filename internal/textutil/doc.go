// Package textutil turns externally supplied identifiers into tokens that are
// safe to use as file names and object-store key segments.
package textutil
