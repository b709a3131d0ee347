// Package media turns user input (an uploaded file or a public URL) into a
// request-scoped local file that the audio extractor can read.
//
// The accepted container formats are fixed up front. Uploads are checked
// by extension before any byte is written; downloads are checked by URL
// extension, then Content-Type, and a generic binary response is treated
// as MP4. Every failure wraps one of the package sentinels so callers can
// classify it with errors.Is.
package media
