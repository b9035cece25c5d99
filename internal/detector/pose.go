package detector

import "math"

// PoseEstimator derives a coarse head pose from the five landmarks.
//
// The constants are empirical calibration values, not derived geometry:
// YawGain scales the raw nose offset angle and PitchNeutral is the
// nose-to-mouth ratio of a frontal face. Keep the defaults unless the
// estimator is recalibrated against ground truth.
type PoseEstimator struct {
	YawGain      float64 `json:"yaw_gain"`
	PitchNeutral float64 `json:"pitch_neutral"`
	PitchRange   float64 `json:"pitch_range"`
}

// DefaultPoseEstimator returns the calibrated estimator
func DefaultPoseEstimator() PoseEstimator {
	return PoseEstimator{
		YawGain:      1.2,
		PitchNeutral: 0.5,
		PitchRange:   90,
	}
}

// Estimate returns yaw, pitch and roll in degrees, unwrapped.
//
// Pitch is negative when the nose sits closer to the mouth line than
// neutral (head tilted down). When the eye and mouth centers share the same
// y, pitch is 0. Coincident eyes give a yaw of 0 or ±90°·YawGain from atan2.
func (e PoseEstimator) Estimate(lm Landmarks) EulerAngle {
	leftEye, rightEye := lm[LeftEye], lm[RightEye]
	nose := lm[NoseTip]

	roll := degrees(math.Atan2(float64(rightEye.Y-leftEye.Y), float64(rightEye.X-leftEye.X)))

	eyeCenter := leftEye.Midpoint(rightEye)
	mouthCenter := lm[MouthLeft].Midpoint(lm[MouthRight])

	interocular := float64(rightEye.X - leftEye.X)
	yaw := degrees(math.Atan2(float64(nose.X-eyeCenter.X), interocular)) * e.YawGain

	var pitch float64
	if faceLength := float64(mouthCenter.Y - eyeCenter.Y); faceLength != 0 {
		ratio := float64(nose.Y-eyeCenter.Y) / faceLength
		pitch = (e.PitchNeutral - ratio) * e.PitchRange
	}

	return EulerAngle{Yaw: float32(yaw), Pitch: float32(pitch), Roll: float32(roll)}
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
