package decoder

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/harrylevesque/kdcode/internal/encoder"
	"github.com/harrylevesque/kdcode/internal/geometry"
	"github.com/harrylevesque/kdcode/internal/payload"
	"github.com/harrylevesque/kdcode/internal/symbol"
)

func testSpec() symbol.Spec {
	spec := symbol.DefaultSpec()
	spec.MaxChars = 48
	spec.ScaleFactor = 2
	return spec
}

func hintFor(spec symbol.Spec) Hint {
	h := DefaultHint()
	h.Spec = spec
	return h
}

func render(t *testing.T, text string, spec symbol.Spec) *image.NRGBA {
	t.Helper()
	img, err := encoder.Encode(text, spec)
	require.NoError(t, err)
	return img
}

// rotate turns img clockwise by deg about its centre onto a white canvas
// large enough to hold every orientation.
func rotate(img image.Image, deg float64) *image.RGBA {
	b := img.Bounds()
	side := int(math.Ceil(float64(max(b.Dx(), b.Dy()))*math.Sqrt2)) + 4
	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	sin, cos := math.Sincos(deg * math.Pi / 180)
	sx, sy := float64(b.Min.X+b.Dx()/2), float64(b.Min.Y+b.Dy()/2)
	dx, dy := float64(side)/2, float64(side)/2
	s2d := f64.Aff3{
		cos, -sin, dx - cos*sx + sin*sy,
		sin, cos, dy - sin*sx - cos*sy,
	}
	xdraw.BiLinear.Transform(dst, s2d, img, b, xdraw.Over, nil)
	return dst
}

func angleDiff(a, b float64) float64 {
	return math.Abs(math.Mod(a-b+540, 360) - 180)
}

func TestDecode_RoundTrip(t *testing.T) {
	spec := testSpec()
	texts := []string{
		"",
		"A",
		"hello, kd-code",
		"héllo wörld ✓",
		strings.Repeat("x", spec.MaxChars),
	}
	for _, text := range texts {
		t.Run(text, func(t *testing.T) {
			got, err := Decode(context.Background(), render(t, text, spec), hintFor(spec))
			require.NoError(t, err)
			assert.Equal(t, text, got.Text)
			assert.Zero(t, got.Corrected)
			assert.Greater(t, got.Confidence, 0.5)

			layout, err := geometry.BuildLayout(spec, len(text))
			require.NoError(t, err)
			assert.Equal(t, layout.Rings, got.Geometry.Rings)
			assert.Equal(t, spec.SegmentsPerRing, got.Geometry.Segments)
		})
	}
}

func TestDecode_DefaultsExampleURL(t *testing.T) {
	spec := symbol.DefaultSpec()
	img := render(t, "https://example.com", spec)

	got, err := Decode(context.Background(), img, DefaultHint())
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.Text)
	assert.Zero(t, got.Corrected)

	g := got.Geometry
	assert.Equal(t, 16, g.Segments)
	assert.Equal(t, geometry.RingsFor(16, len("https://example.com")), g.Rings)
	assert.InDelta(t, float64(spec.ScaleFactor), g.Scale, 0.1)
	assert.InDelta(t, float64(spec.AnchorRadius*spec.ScaleFactor), g.AnchorRadius, 2)
	assert.InDelta(t, float64(img.Bounds().Dx())/2, g.CenterX, 2)
	assert.InDelta(t, float64(img.Bounds().Dy())/2, g.CenterY, 2)
	assert.Less(t, angleDiff(g.RotationDeg, 0), 2.0)
}

func TestDecode_RotationInvariant(t *testing.T) {
	spec := testSpec()
	const text = "rotate me please"
	img := render(t, text, spec)
	for _, deg := range []float64{0, 17, 45, 90, 133.7, 180, 222, 270, 301.5, 359} {
		got, err := Decode(context.Background(), rotate(img, deg), hintFor(spec))
		require.NoError(t, err, "rotation %v", deg)
		assert.Equal(t, text, got.Text, "rotation %v", deg)
		assert.Less(t, angleDiff(got.Geometry.RotationDeg, deg), 2.0, "rotation %v: got %v", deg, got.Geometry.RotationDeg)
	}
}

func TestDecode_Themes(t *testing.T) {
	for _, theme := range []string{"light", "dark", "colorful", "business", "nature", "transparent"} {
		t.Run(theme, func(t *testing.T) {
			spec := testSpec()
			if theme == "transparent" {
				spec.Background = color.NRGBA{}
			} else {
				var err error
				spec, err = spec.WithTheme(theme)
				require.NoError(t, err)
			}
			got, err := Decode(context.Background(), render(t, "theme "+theme, spec), hintFor(spec))
			require.NoError(t, err)
			assert.Equal(t, "theme "+theme, got.Text)
		})
	}
}

func renderBits(t *testing.T, text string, spec symbol.Spec, damage func([]byte)) *image.NRGBA {
	t.Helper()
	layout, err := geometry.BuildLayout(spec, len(text))
	require.NoError(t, err)
	bits, err := payload.EncodePayload(text, spec)
	require.NoError(t, err)
	damage(bits)
	return encoder.Render(bits, layout, spec)
}

func TestDecode_SingleCellFlipIsCorrected(t *testing.T) {
	spec := testSpec()
	const text = "one bad cell"
	last := payload.FrameBits(len(text)) - 1
	for _, bit := range []int{3, 60, 100, last} {
		img := renderBits(t, text, spec, func(b []byte) { b[bit] ^= 1 })
		got, err := Decode(context.Background(), img, hintFor(spec))
		require.NoError(t, err, "bit %d", bit)
		assert.Equal(t, text, got.Text, "bit %d", bit)
		assert.Equal(t, 1, got.Corrected, "bit %d", bit)
	}
}

func TestDecode_DamageBeyondCapacity(t *testing.T) {
	spec := testSpec()
	img := renderBits(t, "three bad bytes in one block", spec, func(b []byte) {
		// Header codeword is bytes 0-5; bytes 6-8 sit in the first body block.
		for i := 6 * 8; i < 9*8; i++ {
			b[i] ^= 1
		}
	})
	_, err := Decode(context.Background(), img, hintFor(spec))
	require.ErrorIs(t, err, symbol.ErrUncorrectable)

	var derr *Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, StageSampled, derr.Stage)
	require.NotNil(t, derr.Geometry)
	assert.Equal(t, 16, derr.Geometry.Segments)
}

func TestDecode_AnchorRadiusRange(t *testing.T) {
	spec := testSpec()
	img := render(t, "filter", spec) // anchor radius 20 px

	cases := []struct {
		name     string
		min, max int
		err      error
	}{
		{"InRange", 15, 25, nil},
		{"AtMin", 20, 25, nil},
		{"AtMax", 15, 20, nil},
		{"TightAtMin", 20, 21, nil},
		{"TightAtMax", 19, 20, nil},
		{"AnchorTooSmall", 25, 100, symbol.ErrNoAnchorDetected},
		{"AnchorTooLarge", 5, 15, symbol.ErrNoAnchorDetected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := hintFor(spec)
			h.MinAnchorRadius, h.MaxAnchorRadius = tc.min, tc.max
			got, err := Decode(context.Background(), img, h)
			if tc.err == nil {
				require.NoError(t, err)
				assert.Equal(t, "filter", got.Text)
				return
			}
			require.ErrorIs(t, err, tc.err)
			var derr *Error
			require.True(t, errors.As(err, &derr))
			assert.Equal(t, StagePreprocessed, derr.Stage)
		})
	}
}

func TestDecode_BlankImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 300, 200))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	_, err := Decode(context.Background(), img, DefaultHint())
	require.ErrorIs(t, err, symbol.ErrNoAnchorDetected)
	assert.True(t, symbol.IsImageQuality(err))
}

func TestDecode_DiscWithoutTick(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			c := color.RGBA{255, 255, 255, 255}
			if math.Hypot(float64(x)+0.5-100, float64(y)+0.5-100) < 20 {
				c = color.RGBA{0, 0, 0, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	_, err := Decode(context.Background(), img, DefaultHint())
	require.ErrorIs(t, err, symbol.ErrOrientationAmbiguous)

	var derr *Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, StageAnchorsFound, derr.Stage)
	require.NotNil(t, derr.Geometry)
	assert.InDelta(t, 100, derr.Geometry.CenterX, 1)
	assert.InDelta(t, 20, derr.Geometry.AnchorRadius, 1)
}

func TestDecode_AutoSegments(t *testing.T) {
	for _, segs := range symbol.SupportedSegments {
		spec := testSpec()
		spec.SegmentsPerRing = segs
		img := render(t, "auto segments", spec)

		h := hintFor(spec)
		h.Spec.SegmentsPerRing = AutoSegments
		got, err := Decode(context.Background(), img, h)
		require.NoError(t, err, "segments %d", segs)
		assert.Equal(t, "auto segments", got.Text)
		assert.Equal(t, segs, got.Geometry.Segments)
	}
}

func TestDecode_WrongSegmentHint(t *testing.T) {
	spec := testSpec()
	img := render(t, "sixteen", spec)
	h := hintFor(spec)
	h.Spec.SegmentsPerRing = 32
	_, err := Decode(context.Background(), img, h)
	assert.ErrorIs(t, err, symbol.ErrOrientationAmbiguous)
}

func TestDecode_NonIntegerMagnification(t *testing.T) {
	spec := testSpec()
	spec.ScaleFactor = 4
	src := render(t, "fractional scale", spec)
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*7/10, b.Dy()*7/10))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)

	got, err := Decode(context.Background(), dst, hintFor(spec))
	require.NoError(t, err)
	assert.Equal(t, "fractional scale", got.Text)
	assert.InDelta(t, 2.8, got.Geometry.Scale, 0.15)
}

func TestDecode_ReportsInputCoordinates(t *testing.T) {
	spec := testSpec()
	sym := render(t, "offset", spec)
	side := sym.Bounds().Dx()

	canvas := image.NewRGBA(image.Rect(0, 0, side+300, side+200))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(200, 50, 200+side, 50+side), sym, image.Point{}, draw.Over)
	sub := canvas.SubImage(image.Rect(100, 0, side+300, side+200))

	got, err := Decode(context.Background(), sub, hintFor(spec))
	require.NoError(t, err)
	assert.Equal(t, "offset", got.Text)
	assert.InDelta(t, 200+float64(side)/2, got.Geometry.CenterX, 1.5)
	assert.InDelta(t, 50+float64(side)/2, got.Geometry.CenterY, 1.5)
}

func TestDecode_Cancelled(t *testing.T) {
	spec := testSpec()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Decode(ctx, render(t, "late", spec), hintFor(spec))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecode_InvalidHint(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))

	h := DefaultHint()
	h.MaxAnchorRadius = h.MinAnchorRadius
	_, err := Decode(context.Background(), img, h)
	assert.ErrorIs(t, err, symbol.ErrInvalidSpec)

	h = DefaultHint()
	h.Spec.SegmentsPerRing = 12
	_, err = Decode(context.Background(), img, h)
	assert.ErrorIs(t, err, symbol.ErrUnsupportedSpec)
}

func TestHintValidate_ColorsIrrelevant(t *testing.T) {
	h := DefaultHint()
	h.Spec.Foreground, h.Spec.Background = color.NRGBA{}, color.NRGBA{}
	assert.NoError(t, h.Validate())

	h.Spec.SegmentsPerRing = AutoSegments
	assert.NoError(t, h.Validate())

	h.Spec.RingWidth = 0
	assert.ErrorIs(t, h.Validate(), symbol.ErrInvalidSpec)
}

func TestDecodeBytes(t *testing.T) {
	spec := testSpec()
	img := render(t, "bytes in, text out", spec)

	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img))
	got, err := DecodeBytes(context.Background(), pngBuf.Bytes(), hintFor(spec))
	require.NoError(t, err)
	assert.Equal(t, "bytes in, text out", got.Text)

	var jpgBuf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpgBuf, img, &jpeg.Options{Quality: 85}))
	got, err = DecodeBytes(context.Background(), jpgBuf.Bytes(), hintFor(spec))
	require.NoError(t, err)
	assert.Equal(t, "bytes in, text out", got.Text)

	_, err = DecodeBytes(context.Background(), []byte("not an image"), hintFor(spec))
	assert.ErrorIs(t, err, ErrInvalidImage)
}

// oversizedPNG encodes a tiny PNG and rewrites its IHDR to declare w x h, so
// only the header claims a large image.
func oversizedPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))
	data := buf.Bytes()
	// 8-byte signature, then length(4) "IHDR"(4) width(4) height(4).
	binary.BigEndian.PutUint32(data[16:], w)
	binary.BigEndian.PutUint32(data[20:], h)
	binary.BigEndian.PutUint32(data[29:], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestReadImage_PixelBudget(t *testing.T) {
	data := oversizedPNG(t, 60000, 60000)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 60000, cfg.Width)

	_, err = ReadImage(data, 0)
	assert.ErrorIs(t, err, ErrImageTooLarge)
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = DecodeBytes(context.Background(), data, DefaultHint())
	assert.ErrorIs(t, err, ErrImageTooLarge)

	var small bytes.Buffer
	require.NoError(t, png.Encode(&small, image.NewGray(image.Rect(0, 0, 10, 10))))
	img, err := ReadImage(small.Bytes(), 100)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())

	_, err = ReadImage(small.Bytes(), 99)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestHintValidate_NegativeMaxPixels(t *testing.T) {
	h := DefaultHint()
	h.MaxPixels = -1
	assert.ErrorIs(t, h.Validate(), symbol.ErrInvalidSpec)
}
