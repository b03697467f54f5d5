package detector

import (
	"gocv.io/x/gocv"

	"github.com/ayusman/instructor/internal/geom"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	poses []Pose
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetPoses sets the poses that will be returned by Detect.
func (m *MockDetector) SetPoses(poses []Pose) {
	m.poses = poses
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.err = err
}

// Calls returns how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	return m.calls
}

// Detect returns the pre-configured poses or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]Pose, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.poses, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// TPose returns a preset Pose of a subject facing the camera with both arms
// stretched out horizontally, in normalized image coordinates (y down).
// The subject's left side appears on the image right (larger x).
func TPose() Pose {
	p := Pose{Score: 0.95}

	p.Points[Nose] = geom.V(0.50, 0.20, -0.30)
	for i := LeftEyeInner; i <= MouthRight; i++ {
		p.Points[i] = geom.V(0.50, 0.19, -0.30)
	}

	p.Points[LeftShoulder] = geom.V(0.60, 0.35, -0.10)
	p.Points[RightShoulder] = geom.V(0.40, 0.35, -0.10)
	p.Points[LeftElbow] = geom.V(0.72, 0.35, -0.10)
	p.Points[RightElbow] = geom.V(0.28, 0.35, -0.10)
	p.Points[LeftWrist] = geom.V(0.84, 0.35, -0.10)
	p.Points[RightWrist] = geom.V(0.16, 0.35, -0.10)

	p.Points[LeftPinky] = geom.V(0.87, 0.36, -0.11)
	p.Points[LeftIndex] = geom.V(0.88, 0.34, -0.12)
	p.Points[LeftThumb] = geom.V(0.86, 0.33, -0.13)
	p.Points[RightPinky] = geom.V(0.13, 0.36, -0.11)
	p.Points[RightIndex] = geom.V(0.12, 0.34, -0.12)
	p.Points[RightThumb] = geom.V(0.14, 0.33, -0.13)

	p.Points[LeftHip] = geom.V(0.56, 0.65, 0.00)
	p.Points[RightHip] = geom.V(0.44, 0.65, 0.00)
	p.Points[LeftKnee] = geom.V(0.56, 0.80, 0.00)
	p.Points[RightKnee] = geom.V(0.44, 0.80, 0.00)
	p.Points[LeftAnkle] = geom.V(0.56, 0.95, 0.00)
	p.Points[RightAnkle] = geom.V(0.44, 0.95, 0.00)
	p.Points[LeftHeel] = geom.V(0.56, 0.97, 0.02)
	p.Points[RightHeel] = geom.V(0.44, 0.97, 0.02)
	p.Points[LeftFootIndex] = geom.V(0.57, 0.98, -0.05)
	p.Points[RightFootIndex] = geom.V(0.43, 0.98, -0.05)

	return p
}

// ReachRight returns TPose with the subject's right hand pushed toward the
// camera and raised above the shoulder.
func ReachRight() Pose {
	p := TPose()
	p.Points[RightElbow] = geom.V(0.36, 0.30, -0.35)
	p.Points[RightWrist] = geom.V(0.34, 0.22, -0.60)
	p.Points[RightPinky] = geom.V(0.33, 0.20, -0.62)
	p.Points[RightIndex] = geom.V(0.34, 0.18, -0.64)
	p.Points[RightThumb] = geom.V(0.36, 0.19, -0.63)
	return p
}
