// Package vad implements a real-time, frame-based voice activity detector
// and utterance segmenter.
//
// The pipeline has four stages:
//
//  1. [Framer] slices an arbitrarily-chunked sample stream into fixed 30 ms
//     frames, carrying partial frames over to the next call.
//  2. Frame feature extraction ([Energy], [ZeroCrossingRate],
//     [SpectralCentroid], [Periodicity], [Classify]): pure functions over a
//     single frame, with no cross-frame state.
//  3. [ThresholdEstimator] maintains a slowly-adapting ambient noise floor
//     from non-speech frames and derives the active speech/non-speech
//     decision threshold from it.
//  4. [Detector] is the segmentation state machine: it confirms speech
//     onsets and offsets with hysteresis delays, buffers samples for the
//     utterance in flight (plus a pre-roll window), force-cuts segments that
//     exceed the maximum duration, and raises a prolonged-silence alarm.
//
// All timing is derived from the sample clock: feeding N samples advances
// the detector by N / sampleRate seconds, regardless of wall-clock arrival
// time. Deadlines (onset confirmation, offset confirmation, maximum-segment
// cut, silence alarm) are absolute stream timestamps checked on every frame
// tick and guarded by generation counters, so a cancelled deadline can never
// act even if it was already due.
//
// A Detector is single-owner and synchronous: [Detector.Feed] returns the
// events triggered by the supplied samples, in causal order. It is not safe
// for concurrent use; callers processing one stream from multiple goroutines
// must serialize access externally. Create one Detector per audio source.
package vad
