// Package fusion holds the camera/lidar fusion primitives.
//
// Responsibilities: mapping detector bounding boxes into the lidar angle
// frame, matching them against a lidar sweep for distance, tracking the
// forward-arc proximity signal, and classifying the hazard an object
// represents.
// Key types: DetectionBox, LidarSample, FusedObservation, Classifier.
//
// Dependency rule: fusion is a leaf. The wire codec and the cycle
// orchestration (internal/framecodec, internal/pipeline) import it, never the
// other way round.
package fusion
