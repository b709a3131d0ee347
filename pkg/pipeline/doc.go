// Package pipeline runs one accent analysis request through its stages:
//
//	Idle -> Acquiring -> Extracting -> Classifying -> Done -> Idle
//	                 \____________\____________\____> Failed -> Idle
//
// A [Runner] serialises requests: while one runs, later ones wait for it
// (or for their context). Each state change is published as an [Event]
// to subscribers, which the web layer relays to browsers. Errors are
// classified into a [Kind] with a user-facing message and an HTTP status.
// The request's media file is always removed when the request ends.
package pipeline
