// Package pose provides body-pose estimation: keypoint types, the Estimator
// interface and its backends.
package pose

import (
	"image"
	"math"
	"sort"
)

// Joint names a body keypoint.
type Joint string

// The 19-joint body set.
const (
	JointNose          Joint = "nose"
	JointLeftEye       Joint = "left_eye"
	JointRightEye      Joint = "right_eye"
	JointLeftEar       Joint = "left_ear"
	JointRightEar      Joint = "right_ear"
	JointNeck          Joint = "neck"
	JointLeftShoulder  Joint = "left_shoulder"
	JointRightShoulder Joint = "right_shoulder"
	JointLeftElbow     Joint = "left_elbow"
	JointRightElbow    Joint = "right_elbow"
	JointLeftWrist     Joint = "left_wrist"
	JointRightWrist    Joint = "right_wrist"
	JointRoot          Joint = "root"
	JointLeftHip       Joint = "left_hip"
	JointRightHip      Joint = "right_hip"
	JointLeftKnee      Joint = "left_knee"
	JointRightKnee     Joint = "right_knee"
	JointLeftAnkle     Joint = "left_ankle"
	JointRightAnkle    Joint = "right_ankle"
)

// Joints lists every joint in drawing order.
var Joints = []Joint{
	JointNose, JointLeftEye, JointRightEye, JointLeftEar, JointRightEar,
	JointNeck, JointLeftShoulder, JointRightShoulder,
	JointLeftElbow, JointRightElbow, JointLeftWrist, JointRightWrist,
	JointRoot, JointLeftHip, JointRightHip,
	JointLeftKnee, JointRightKnee, JointLeftAnkle, JointRightAnkle,
}

var jointOrder = func() map[Joint]int {
	m := make(map[Joint]int, len(Joints))
	for i, j := range Joints {
		m[j] = i
	}
	return m
}()

// Point is a location in normalized image space: X and Y in [0, 1],
// origin at the top-left corner.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Keypoint is one recognized joint.
type Keypoint struct {
	Joint      Joint   `json:"joint"`
	Location   Point   `json:"location"`
	Confidence float64 `json:"confidence"` // 0-1, 0 means not found
}

// Observation is one detected body.
type Observation struct {
	Confidence float64            `json:"confidence"`
	Keypoints  map[Joint]Keypoint `json:"keypoints"`
}

// Visible returns the keypoints with confidence above zero in joint order.
// Joints outside the standard set sort last by name.
func (o Observation) Visible() []Keypoint {
	out := make([]Keypoint, 0, len(o.Keypoints))
	for _, kp := range o.Keypoints {
		if kp.Confidence > 0 {
			out = append(out, kp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		oi, iok := jointOrder[out[i].Joint]
		oj, jok := jointOrder[out[j].Joint]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		}
		return out[i].Joint < out[j].Joint
	})
	return out
}

// ImagePoint maps a normalized point onto a w×h image.
// (0.5, 0.5) on 640×480 is (320, 240).
func ImagePoint(p Point, w, h int) image.Point {
	return image.Pt(
		int(math.Round(p.X*float64(w))),
		int(math.Round(p.Y*float64(h))),
	)
}

// NormalizedPoint is the inverse of ImagePoint.
func NormalizedPoint(pt image.Point, w, h int) Point {
	if w <= 0 || h <= 0 {
		return Point{}
	}
	return Point{X: float64(pt.X) / float64(w), Y: float64(pt.Y) / float64(h)}
}

// midpoint synthesizes a joint halfway between a and b with the weaker
// of the two confidences.
func midpoint(j Joint, a, b Keypoint) Keypoint {
	return Keypoint{
		Joint: j,
		Location: Point{
			X: (a.Location.X + b.Location.X) / 2,
			Y: (a.Location.Y + b.Location.Y) / 2,
		},
		Confidence: math.Min(a.Confidence, b.Confidence),
	}
}
