package landmark

// Connection is one skeleton edge.
type Connection struct {
	A, B Name
}

// AngleSpec describes a joint angle: Points are (A, Vertex, C) and the label
// is drawn near Anchor.
type AngleSpec struct {
	Name   string
	Points [3]Name
	Anchor Name
}

// Vertex returns the middle point of the angle.
func (a AngleSpec) Vertex() Name {
	return a.Points[1]
}

// Required returns every landmark the angle needs, anchor included.
func (a AngleSpec) Required() []Name {
	return []Name{a.Points[0], a.Points[1], a.Points[2], a.Anchor}
}

var connections = [...]Connection{
	// torso
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftHip},
	{RightShoulder, RightHip},
	{LeftHip, RightHip},

	// left arm
	{LeftShoulder, LeftElbow},
	{LeftElbow, LeftWrist},
	{LeftWrist, LeftPinky},
	{LeftWrist, LeftIndex},
	{LeftWrist, LeftThumb},

	// right arm
	{RightShoulder, RightElbow},
	{RightElbow, RightWrist},
	{RightWrist, RightPinky},
	{RightWrist, RightIndex},
	{RightWrist, RightThumb},

	// left leg
	{LeftHip, LeftKnee},
	{LeftKnee, LeftAnkle},
	{LeftAnkle, LeftHeel},
	{LeftAnkle, LeftFootIndex},

	// right leg
	{RightHip, RightKnee},
	{RightKnee, RightAnkle},
	{RightAnkle, RightHeel},
	{RightAnkle, RightFootIndex},

	// face
	{Nose, LeftEye},
	{LeftEye, LeftEar},
	{Nose, RightEye},
	{RightEye, RightEar},
	{MouthLeft, MouthRight},
}

var angleSpecs = [...]AngleSpec{
	{Name: "left elbow", Points: [3]Name{LeftShoulder, LeftElbow, LeftWrist}, Anchor: LeftElbow},
	{Name: "right elbow", Points: [3]Name{RightShoulder, RightElbow, RightWrist}, Anchor: RightElbow},
	{Name: "left knee", Points: [3]Name{LeftHip, LeftKnee, LeftAnkle}, Anchor: LeftKnee},
	{Name: "right knee", Points: [3]Name{RightHip, RightKnee, RightAnkle}, Anchor: RightKnee},
	{Name: "left shoulder", Points: [3]Name{LeftElbow, LeftShoulder, LeftHip}, Anchor: LeftShoulder},
	{Name: "right shoulder", Points: [3]Name{RightElbow, RightShoulder, RightHip}, Anchor: RightShoulder},
}

// Connections returns a copy of the skeleton topology.
func Connections() []Connection {
	out := make([]Connection, len(connections))
	copy(out, connections[:])
	return out
}

// AngleSpecs returns a copy of the displayed joint angles.
func AngleSpecs() []AngleSpec {
	out := make([]AngleSpec, len(angleSpecs))
	copy(out, angleSpecs[:])
	return out
}
