// Package workdir reclaims per-job scratch directories under the configured
// work root. Each job writes its downloaded video, frames and rendered
// document to <work_dir>/<job id>; nothing removes them when the job ends
// because a later run can reuse cached frames from them.
package workdir
