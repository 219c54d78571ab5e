// Package textutil holds the small text helpers shared by the document and
// artifact writers: file name sanitizing and title casing.
package textutil
