// Package render lays slides out as a PDF handout and shrinks it.
//
// The render-document stage names the handout, writes one block per slide
// (image at page width, spoken text below) with gofpdf and hands the file to
// the storage backend. The compress-document stage runs ghostscript, falls
// back to pdfcpu, and only keeps a result that is smaller than the input.
package render
