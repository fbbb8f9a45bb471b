// Package capture provides the frame sources poses are read from.
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

const (
	DefaultFPS    = 5
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned by ReadFrame before Open.
	ErrCameraNotOpen = errors.New("camera is not open")

	// ErrNoFrame is returned when the source delivered no usable frame.
	ErrNoFrame = errors.New("no frame available")
)

// Camera is a frame source. ReadFrame hands ownership of the Mat to the
// caller, who must Close it.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Device reads frames from a local video device through OpenCV.
type Device struct {
	id     int
	width  int
	height int
	fps    int

	mu sync.Mutex
	vc *gocv.VideoCapture
}

var _ Camera = (*Device)(nil)

// NewCamera returns device id at 640x480 and DefaultFPS.
func NewCamera(id int) Camera {
	return NewDevice(id, DefaultWidth, DefaultHeight)
}

// NewDevice returns an unopened device that requests the given frame size.
func NewDevice(id, width, height int) *Device {
	return &Device{id: id, width: width, height: height, fps: DefaultFPS}
}

// Open starts capture. Opening an open device is a no-op.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(d.id)
	if err != nil {
		return fmt.Errorf("failed to open camera %d: %w", d.id, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("failed to open camera %d", d.id)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(d.width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(d.height))
	vc.Set(gocv.VideoCaptureFPS, float64(d.fps))
	d.vc = vc
	return nil
}

// Close releases the device. Closing a closed device is a no-op.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil {
		return nil
	}
	err := d.vc.Close()
	d.vc = nil
	return err
}

// ReadFrame grabs the next frame.
func (d *Device) ReadFrame() (*gocv.Mat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if !d.vc.Read(&mat) || mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("camera %d: %w", d.id, ErrNoFrame)
	}
	return &mat, nil
}

// SetFPS changes the requested frame rate. Non-positive values are ignored.
func (d *Device) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.fps = fps
	if d.vc != nil {
		d.vc.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (d *Device) FPS() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fps
}

func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vc != nil
}
