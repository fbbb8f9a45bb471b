package detector

// Preset right hands in image coordinates (y grows downward), one row per
// landmark in index order.

var thumbsUpPoints = [NumLandmarks][3]float64{
	{0.50, 0.80, 0.00}, // wrist
	{0.55, 0.75, 0.00}, {0.58, 0.65, 0.00}, {0.58, 0.50, 0.00}, {0.58, 0.35, 0.00}, // thumb, raised
	{0.55, 0.70, -0.02}, {0.55, 0.68, -0.05}, {0.52, 0.70, -0.04}, {0.50, 0.72, -0.02},
	{0.50, 0.68, -0.02}, {0.50, 0.66, -0.05}, {0.47, 0.68, -0.04}, {0.45, 0.70, -0.02},
	{0.45, 0.70, -0.02}, {0.45, 0.68, -0.05}, {0.42, 0.70, -0.04}, {0.40, 0.72, -0.02},
	{0.40, 0.72, -0.02}, {0.40, 0.70, -0.05}, {0.37, 0.72, -0.04}, {0.35, 0.74, -0.02},
}

var openPalmPoints = [NumLandmarks][3]float64{
	{0.50, 0.80, 0.00},
	{0.55, 0.75, 0.02}, {0.62, 0.70, 0.03}, {0.68, 0.65, 0.03}, {0.73, 0.60, 0.03}, // thumb, out to the side
	{0.55, 0.68, 0.00}, {0.57, 0.55, 0.00}, {0.58, 0.45, 0.00}, {0.58, 0.35, 0.00},
	{0.50, 0.66, 0.00}, {0.50, 0.52, 0.00}, {0.50, 0.40, 0.00}, {0.50, 0.28, 0.00},
	{0.45, 0.68, 0.00}, {0.43, 0.55, 0.00}, {0.42, 0.45, 0.00}, {0.42, 0.35, 0.00},
	{0.40, 0.70, 0.00}, {0.37, 0.60, 0.00}, {0.35, 0.50, 0.00}, {0.34, 0.42, 0.00},
}

var fistPoints = [NumLandmarks][3]float64{
	{0.50, 0.80, 0.00},
	{0.55, 0.76, -0.01}, {0.57, 0.71, -0.03}, {0.55, 0.68, -0.05}, {0.52, 0.67, -0.06}, // thumb folded over the fingers
	{0.55, 0.70, -0.02}, {0.55, 0.67, -0.06}, {0.53, 0.70, -0.05}, {0.52, 0.73, -0.03},
	{0.50, 0.68, -0.02}, {0.50, 0.65, -0.06}, {0.48, 0.69, -0.05}, {0.47, 0.72, -0.03},
	{0.45, 0.70, -0.02}, {0.45, 0.67, -0.06}, {0.43, 0.70, -0.05}, {0.42, 0.73, -0.03},
	{0.40, 0.72, -0.02}, {0.40, 0.70, -0.05}, {0.38, 0.72, -0.04}, {0.37, 0.75, -0.02},
}

func presetHand(points *[NumLandmarks][3]float64) HandLandmarks {
	h := NewHandLandmarks("Right", 0.95)
	for i, p := range points {
		h.Points[i] = Point3D{X: p[0], Y: p[1], Z: p[2]}
	}
	return h
}

// ThumbsUpLandmarks is a right hand with the thumb raised and the other
// fingers curled.
func ThumbsUpLandmarks() HandLandmarks { return presetHand(&thumbsUpPoints) }

// OpenPalmLandmarks is a right hand with every finger extended.
func OpenPalmLandmarks() HandLandmarks { return presetHand(&openPalmPoints) }

// FistLandmarks is a closed right hand.
func FistLandmarks() HandLandmarks { return presetHand(&fistPoints) }
