// Package detector provides pose detection interfaces and the extraction of
// named body points from raw skeletal keypoints.
package detector

import (
	"errors"
	"fmt"

	"github.com/ayusman/instructor/internal/geom"
)

// Pose landmark indices following the MediaPipe Pose 33-point topology.
// Left and right refer to the subject's body, not the image: the subject's
// left side always has the odd index.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

// Names of the semantic points in a LandmarkSet.
const (
	NameNose            = "nose"
	NameLeftHand        = "left_hand"
	NameLeftElbow       = "left_elbow"
	NameLeftShoulder    = "left_shoulder"
	NameRightHand       = "right_hand"
	NameRightElbow      = "right_elbow"
	NameRightShoulder   = "right_shoulder"
	NameCenterShoulders = "center_shoulders"
	NameCenterHips      = "center_hips"
)

// Names lists the LandmarkSet vocabulary in a stable order.
var Names = []string{
	NameNose,
	NameLeftHand,
	NameLeftElbow,
	NameLeftShoulder,
	NameRightHand,
	NameRightElbow,
	NameRightShoulder,
	NameCenterShoulders,
	NameCenterHips,
}

// ErrIncompleteSkeleton is returned when a detection carries some, but not
// all, of the 33 keypoints.
var ErrIncompleteSkeleton = errors.New("incomplete skeleton")

// Pose is one detected body with its 33 keypoints.
type Pose struct {
	Points [NumLandmarks]geom.Vec3 `json:"points"`
	Score  float64                 `json:"score"`
}

// LandmarkSet maps semantic body-point names to positions for one frame.
type LandmarkSet map[string]geom.Vec3

// Extract reduces raw keypoints to the named LandmarkSet.
// An empty input means nothing was detected and yields an empty set.
func Extract(points []geom.Vec3) (LandmarkSet, error) {
	if len(points) == 0 {
		return LandmarkSet{}, nil
	}
	if len(points) < NumLandmarks {
		return nil, fmt.Errorf("%w: got %d of %d keypoints", ErrIncompleteSkeleton, len(points), NumLandmarks)
	}

	// Hands use the centroid of three fingertip points to smooth single-point jitter.
	leftHand := geom.Mean(points[LeftPinky], points[LeftIndex], points[LeftThumb])
	rightHand := geom.Mean(points[RightPinky], points[RightIndex], points[RightThumb])

	return LandmarkSet{
		NameNose:            points[Nose],
		NameLeftHand:        leftHand,
		NameLeftElbow:       points[LeftElbow],
		NameLeftShoulder:    points[LeftShoulder],
		NameRightHand:       rightHand,
		NameRightElbow:      points[RightElbow],
		NameRightShoulder:   points[RightShoulder],
		NameCenterShoulders: geom.Mean(points[LeftShoulder], points[RightShoulder]),
		NameCenterHips:      geom.Mean(points[LeftHip], points[RightHip]),
	}, nil
}

// ExtractPose is Extract for a detected Pose.
func ExtractPose(p *Pose) LandmarkSet {
	if p == nil {
		return LandmarkSet{}
	}
	set, _ := Extract(p.Points[:])
	return set
}

// Column is the recording column name for a landmark from the given producer.
func Column(prefix, name string) string {
	return prefix + "::" + name
}
