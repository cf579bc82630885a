package video

import (
	"testing"

	"go.viam.com/test"
)

func TestSampleIndicesEvenRatio(t *testing.T) {
	got := SampleIndices(30, 10, 30)
	test.That(t, got, test.ShouldHaveLength, 10)
	test.That(t, got[0], test.ShouldEqual, 0)
	test.That(t, got[1], test.ShouldEqual, 3)
	test.That(t, got[9], test.ShouldEqual, 27)
}

func TestSampleIndicesUnevenRatio(t *testing.T) {
	// 24 -> 10 fps cannot space evenly; the floor rule still keeps the right
	// count over a whole second
	got := SampleIndices(24, 10, 24)
	test.That(t, got, test.ShouldHaveLength, 10)
	for i := 1; i < len(got); i++ {
		test.That(t, got[i], test.ShouldBeGreaterThan, got[i-1])
	}
}

func TestSampleIndicesUpsampling(t *testing.T) {
	// a target at or above the source keeps every frame
	test.That(t, SampleIndices(10, 10, 5), test.ShouldResemble, []int{0, 1, 2, 3, 4})
	test.That(t, SampleIndices(10, 30, 5), test.ShouldResemble, []int{0, 1, 2, 3, 4})
}

func TestSampleIndicesDegenerate(t *testing.T) {
	test.That(t, SampleIndices(0, 10, 5), test.ShouldBeNil)
	test.That(t, SampleIndices(10, 0, 5), test.ShouldBeNil)
	test.That(t, SampleIndices(10, 10, 0), test.ShouldBeNil)
}

func TestSampleIndicesFractionalSource(t *testing.T) {
	// NTSC-style 29.97 source down to 10 fps over ten seconds
	got := SampleIndices(29.97, 10, 300)
	test.That(t, len(got), test.ShouldBeBetweenOrEqual, 99, 101)
}

func TestParseRate(t *testing.T) {
	fps, err := parseRate("30000/1001")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fps, test.ShouldAlmostEqual, 29.97, 0.01)

	fps, err = parseRate("25")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fps, test.ShouldEqual, 25)

	_, err = parseRate("0/0")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = parseRate("abc")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestParseProbe(t *testing.T) {
	raw := `{
		"streams": [
			{"codec_type": "audio"},
			{"codec_type": "video", "width": 1280, "height": 720,
			 "avg_frame_rate": "30/1", "duration": "12.5", "nb_frames": "375"}
		],
		"format": {"duration": "12.5"}
	}`
	info, err := parseProbe(raw)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Width, test.ShouldEqual, 1280)
	test.That(t, info.Height, test.ShouldEqual, 720)
	test.That(t, info.FPS, test.ShouldEqual, 30)
	test.That(t, info.TotalFrames, test.ShouldEqual, 375)

	_, err = parseProbe(`{"streams": [{"codec_type": "audio"}]}`)
	test.That(t, err, test.ShouldNotBeNil)

	// zero duration is not analyzable
	_, err = parseProbe(`{"streams": [{"codec_type": "video", "avg_frame_rate": "30/1", "duration": "0"}]}`)
	test.That(t, err, test.ShouldNotBeNil)
}
