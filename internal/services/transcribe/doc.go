// Package transcribe converts lecture audio into timestamped captions using
// the OpenAI audio transcription endpoint.
//
// The audio track is first reduced to mono 16 kHz with ffmpeg to keep uploads
// small. When ffmpeg is unavailable the video file is uploaded as-is.
package transcribe
