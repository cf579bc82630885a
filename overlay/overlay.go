// Package overlay draws detected skeletons onto frames for visual review.
package overlay

import (
	"image"

	"github.com/fogleman/gg"

	"github.com/posecoach/posecoach/pose"
)

// Style controls the rendering.
type Style struct {
	// JointRadius is the joint marker radius in pixels.
	JointRadius float64
	// BoneWidth is the bone stroke width in pixels.
	BoneWidth float64
	// MinVisibility hides joints and bones below this confidence.
	MinVisibility float64
	// Faulted tints the skeleton red for frames carrying faults.
	Faulted bool
}

// DefaultStyle returns the standard rendering parameters.
func DefaultStyle() Style {
	return Style{
		JointRadius:   3,
		BoneWidth:     2,
		MinVisibility: pose.DefaultMinVisibility,
	}
}

// Render draws the keypoint set over the image and returns the composite.
// Keypoints are expected in normalized [0,1] coordinates and are scaled to
// the image size.
func Render(img image.Image, ks *pose.KeypointSet, style Style) image.Image {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	dc := gg.NewContext(w, h)
	dc.DrawImage(img, 0, 0)

	boneR, boneG, boneB := 0.1, 0.85, 0.4
	if style.Faulted {
		boneR, boneG, boneB = 0.9, 0.2, 0.2
	}

	dc.SetRGBA(boneR, boneG, boneB, 0.9)
	dc.SetLineWidth(style.BoneWidth)
	for _, bone := range pose.Skeleton {
		if !ks.Visible(bone.From, style.MinVisibility) || !ks.Visible(bone.To, style.MinVisibility) {
			continue
		}
		from, to := ks[bone.From], ks[bone.To]
		dc.DrawLine(from.X*float64(w), from.Y*float64(h), to.X*float64(w), to.Y*float64(h))
		dc.Stroke()
	}

	dc.SetRGBA(1, 1, 1, 0.9)
	for j := pose.Joint(0); j < pose.NumDetected; j++ {
		if !ks.Visible(j, style.MinVisibility) {
			continue
		}
		dc.DrawCircle(ks[j].X*float64(w), ks[j].Y*float64(h), style.JointRadius)
		dc.Fill()
	}
	return dc.Image()
}
