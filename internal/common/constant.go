package common

// DocKeyHeaderName is the gRPC metadata key that carries the document key
// on session-channel streams.
const DocKeyHeaderName = "doc_key"
