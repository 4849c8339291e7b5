// Package download writes HTTP response bodies to disk for transfers
// running in download mode.
//
// A [File] streams each attempt into a sibling temp file named
// destination + [PartialSuffix]. A partial file left behind by an
// earlier run is resumed: [File.Offset] reports its size so the caller
// can request the remaining byte range, and [File.Receive] appends when
// the server honoured it. [File.Commit] renames the finished file into
// place; [File.Discard] removes it after a failed transfer.
//
// Most callers should use
// [github.com/adamwoolhether/httpmulti/client/transfer.WithDownload],
// which drives a File across attempts and retries.
package download
