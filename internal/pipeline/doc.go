// Package pipeline runs the fusion loop.
//
// It wires the external collaborators (camera, detector, lidar, serial link,
// cycle recorder) to the pure stages in internal/fusion and the frame codec
// in internal/framecodec. A cycle is synchronous: grab the sweep, capture a
// frame, detect, fuse each detection, then exchange one frame with the peer.
// The pipeline does not own domain logic; it delegates to those packages.
package pipeline
