package video

const (
	FrameWidth  = 160
	FrameHeight = 144
	FrameSize   = FrameWidth * FrameHeight
)

// FrameBuffer holds one 160x144 frame as 2-bit shade indices, 0 (lightest)
// to 3 (darkest). These are the values left after BGP/OBP palette mapping;
// turning them into actual colors is the host renderer's job.
type FrameBuffer struct {
	shades [FrameSize]byte
}

func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// At returns the shade at (x, y). Callers must stay within 160x144.
func (fb *FrameBuffer) At(x, y int) byte {
	return fb.shades[y*FrameWidth+x]
}

func (fb *FrameBuffer) set(x, y int, shade byte) {
	fb.shades[y*FrameWidth+x] = shade
}

// Shades exposes the raw row-major shade slice. The slice aliases the
// buffer's storage; hosts that hold onto a frame across StepFrame calls
// should copy it.
func (fb *FrameBuffer) Shades() []byte {
	return fb.shades[:]
}

// Fill sets every pixel to the given shade.
func (fb *FrameBuffer) Fill(shade byte) {
	for i := range fb.shades {
		fb.shades[i] = shade
	}
}
