// Package frames turns a captioned video into slides.
//
// One frame is grabbed per caption, shortly after the caption starts. Frames
// are compared by the correlation of their Canny edge maps. Consecutive
// captions whose frames look alike are collapsed onto one representative
// image, so each slide carries the text spoken while it was on screen.
package frames
