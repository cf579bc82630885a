package main

import (
	"testing"

	"go.viam.com/test"
)

func TestShortRevision(t *testing.T) {
	test.That(t, shortRevision("0123456789abcdef"), test.ShouldEqual, "01234567")
	test.That(t, shortRevision("01234567"), test.ShouldEqual, "01234567")
	// some build environments record truncated or placeholder revisions
	test.That(t, shortRevision("012345"), test.ShouldEqual, "012345")
	test.That(t, shortRevision(""), test.ShouldEqual, "")
}

func TestSyntheticClip(t *testing.T) {
	for _, exercise := range []string{"pushup", "pull-up"} {
		clip, err := syntheticClip(exercise)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, len(clip), test.ShouldBeGreaterThan, 100)
	}
	_, err := syntheticClip("handstand")
	test.That(t, err, test.ShouldNotBeNil)
}
