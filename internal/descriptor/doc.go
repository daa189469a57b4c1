// Package descriptor turns curvature signals into fixed-shape descriptors.
//
// Two strategies are provided:
//   - Block: each scale's curvature is resampled over cumulative arc length
//     to a fixed length and stored as a 1xL matrix keyed by scale.
//   - Keypoint-local: anchors are placed along a resampled signal and a
//     Gaussian-weighted window around each anchor becomes one row of a
//     (num_keypoints, feat_dim) matrix. The signal is either a curvature
//     scale (keys "0.100") or a Gaussian derivative of the edge tangent
//     angle (keys "(2, 4)").
//
// Encoders never panic on short input; they return services.ErrInsufficientData
// so the caller can record a failure marker.
package descriptor
