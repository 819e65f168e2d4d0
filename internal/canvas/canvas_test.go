package canvas

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImage_RejectsEmptySize(t *testing.T) {
	_, err := NewImage(0, 10)
	assert.Error(t, err)
}

func TestImage_DrawsAndEncodes(t *testing.T) {
	img, err := NewImage(120, 60)
	require.NoError(t, err)
	defer img.Close()

	img.SetColor(Black)
	img.SetLineWidth(1)
	img.Line(0, 30, 120, 30)
	img.Ellipse(60, 30, 6, 4, -0.35, true)
	img.Rect(10, 10, 5, 5, false)
	img.Arc(90, 30, 8, 0, 3.14)
	img.Text("Do", 60, 50, 12, 0.5, 0)

	w, h := img.Size()
	assert.Equal(t, 120.0, w)
	assert.Equal(t, 60.0, h)
	assert.Greater(t, img.MeasureText("Sol", 12), img.MeasureText("Do", 12))

	var buf bytes.Buffer
	require.NoError(t, img.EncodePNG(&buf))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 120, decoded.Bounds().Dx())

	_, _, _, a := img.Image().At(60, 30).RGBA()
	assert.NotZero(t, a, "the staff line pixel should be painted")
}

func TestComposite_OpaqueBackground(t *testing.T) {
	bottom, err := NewImage(40, 20)
	require.NoError(t, err)
	top, err := NewImage(40, 20)
	require.NoError(t, err)
	top.SetColor(Correct)
	top.Rect(0, 0, 10, 10, true)

	out := Composite(bottom, nil, top)

	assert.Equal(t, 40, out.Bounds().Dx())
	r, g, b, a := out.At(30, 15).RGBA()
	assert.Equal(t, []uint32{0xffff, 0xffff, 0xffff, 0xffff}, []uint32{r, g, b, a}, "untouched pixels are white")
	_, g, _, _ = out.At(5, 5).RGBA()
	assert.Less(t, g, uint32(0xffff), "the filled rect shows through")

	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, bottom, top))
	assert.NotZero(t, buf.Len())
}

func TestRecorder_ClearDropsOps(t *testing.T) {
	r := NewRecorder(100, 50)
	r.SetColor(Wrong)
	r.Text("Mi", 10, 10, 12, 0.5, 0)
	r.Line(0, 0, 1, 1)

	require.Len(t, r.Ops(), 2)
	assert.Equal(t, Wrong, r.Texts()[0].Color)
	assert.True(t, r.HasText("Mi"))

	r.Clear()

	assert.Empty(t, r.Ops())
	assert.Equal(t, 1, r.Clears())
	assert.Zero(t, r.Count("line"))
}
