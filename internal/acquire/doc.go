// Package acquire materialises a job's video source as a local file in the
// job work directory and establishes the source identity.
//
// Supported sources:
//   - direct files, copied into the work dir unless already there
//   - remote URLs, streamed to video.mp4.part with Range resume
//   - HLS playlists, decoded with grafov/m3u8 and concatenated with ffmpeg
//   - authenticated Panopto deliveries, resolved to one of the above
//
// Anonymous sources are identified by the SHA-256 of the acquired bytes;
// authenticated sources by their delivery id. ffprobe validates the result
// when it is installed.
package acquire
