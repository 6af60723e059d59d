package ledring

import (
	"fmt"
	"log"
	"math"

	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/apa102"
	"periph.io/x/host/v3"
)

// Dot colors. Base is the idle ring color, danger marks the arc the
// robot is leaning towards, calibrating fills the ring while the board
// warms up.
var (
	colorBase        = [3]byte{53, 118, 174}
	colorDanger      = [3]byte{255, 20, 20}
	colorCalibrating = [3]byte{255, 191, 0}
)

// The ring leaves a 15 degree gap at the seam; dots cover the remaining
// arc.
const arcGap = 15 * math.Pi / 180

// Opts configures the ring.
type Opts struct {
	SPIDevice string
	NumDots   int
	Intensity uint8 // global brightness, 0-255
	MaxTilt   float64
}

// Ring drives the APA102 (DotStar) indicator ring around the robot's
// midsection.
type Ring struct {
	dev     *apa102.Dev
	n       int
	buf     []byte // 3 bytes per dot, RGB
	maxTilt float64
}

// Open initializes periph, connects to the ring over SPI and blanks it.
func Open(o Opts) (*Ring, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("ledring: periph host init: %w", err)
	}

	port, err := spireg.Open(o.SPIDevice)
	if err != nil {
		return nil, fmt.Errorf("ledring: SPI open (%s): %w", o.SPIDevice, err)
	}

	dev, err := apa102.New(port, &apa102.Opts{
		NumPixels:   o.NumDots,
		Intensity:   o.Intensity,
		Temperature: apa102.NeutralTemp,
	})
	if err != nil {
		return nil, fmt.Errorf("ledring: apa102 init: %w", err)
	}
	log.Printf("ledring: %d dots on %s", o.NumDots, o.SPIDevice)

	r := &Ring{
		dev:     dev,
		n:       o.NumDots,
		buf:     make([]byte, 3*o.NumDots),
		maxTilt: o.MaxTilt,
	}
	if err := r.Fill([3]byte{}); err != nil {
		return nil, err
	}
	return r, nil
}

// Fill paints every dot with one color.
func (r *Ring) Fill(c [3]byte) error {
	for i := 0; i < r.n; i++ {
		copy(r.buf[3*i:], c[:])
	}
	_, err := r.dev.Write(r.buf)
	return err
}

// Calibrating shows the warm-up fill.
func (r *Ring) Calibrating() error {
	return r.Fill(colorCalibrating)
}

// ShowTilt paints the danger arc the robot is leaning towards over the
// base color. Arc position and width come from the tilt direction and
// magnitude.
func (r *Ring) ShowTilt(roll, pitch float64) error {
	start, stop := tiltArc(roll, pitch, r.maxTilt, r.n)
	for i := 0; i < r.n; i++ {
		c := colorBase
		if i >= start && i < stop {
			c = colorDanger
		}
		copy(r.buf[3*i:], c[:])
	}
	_, err := r.dev.Write(r.buf)
	return err
}

// Close blanks the ring and releases the device.
func (r *Ring) Close() error {
	if err := r.Fill([3]byte{}); err != nil {
		return err
	}
	return r.dev.Halt()
}

// tiltArc maps a roll/pitch tilt onto a half-open dot range [start,
// stop). The arc is centered on the direction the robot leans towards
// and widens with tilt magnitude, saturating at half the ring when the
// combined tilt reaches maxTilt on both axes.
func tiltArc(roll, pitch, maxTilt float64, nDots int) (int, int) {
	x := math.Sin(roll)
	y := math.Sin(pitch)
	if x == 0 && y == 0 {
		return 0, 0
	}

	pos := math.Mod(math.Pi/2-math.Atan2(y, x)+2*math.Pi, 2*math.Pi)
	arcPerDot := (2*math.Pi - 2*arcGap) / float64(nDots)
	center := int((pos - arcGap) / arcPerDot)

	intensity := (math.Abs(x) + math.Abs(y)) / (2 * math.Abs(math.Sin(maxTilt)))
	half := int(intensity * float64(nDots) / 2)

	start := center - half
	stop := center + half + 1
	if start < 0 {
		start = 0
	}
	if stop > nDots {
		stop = nDots
	}
	return start, stop
}
