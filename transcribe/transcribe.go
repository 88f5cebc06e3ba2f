// Package transcribe defines the external speech-to-text capability.
// Transcripts feed the similarity index: the text is embedded and stored with
// its timestamped segments for later semantic lookup.
package transcribe

import "context"

// Segment is a time-aligned span of a transcript.
type Segment struct {
	// Start and End are offsets into the audio in seconds.
	Start float64
	End   float64

	// Text is the transcribed span.
	Text string
}

// Transcript is the result of transcribing one audio signal.
type Transcript struct {
	// Text is the full transcript.
	Text string

	// Segments are the time-aligned spans, in order. May be empty when the
	// capability does not report timestamps.
	Segments []Segment
}

// Transcriber converts speech audio into text.
//
// Transcribe blocks for the duration of the external call; implementations
// must honor ctx cancellation.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []float32) (Transcript, error)
}
