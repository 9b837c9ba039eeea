package entity

// Frame is a single decoded video frame.
//
// Immutability contract: Image must not be modified after the frame leaves
// the extractor. Frames are shared by reference through the inference pool,
// so a mutation would race with in-flight reads.
type Frame struct {
	// Index is the zero-based position of the frame in decode order.
	Index int

	// Timestamp is the frame's offset from the start of the video, in seconds.
	Timestamp float64

	// Image holds the encoded frame bytes (PNG or JPEG, per extractor config).
	Image []byte
}
