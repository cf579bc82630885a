package video

// SampleIndices lists the source frame indices a rate conversion from srcFPS
// to tgtFPS keeps, over total source frames. Source frame i survives iff
// floor(i*tgt/src) advances past floor((i-1)*tgt/src); this matches the frame
// selection of ffmpeg's fps filter, which performs the actual decode, and is
// used to recover source-frame provenance and timestamps for sampled frames.
// A target rate at or above the source rate keeps every frame.
func SampleIndices(srcFPS, tgtFPS float64, total int) []int {
	if srcFPS <= 0 || tgtFPS <= 0 || total <= 0 {
		return nil
	}
	if tgtFPS >= srcFPS {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out
	}
	var out []int
	prev := -1
	for i := 0; i < total; i++ {
		cur := int(float64(i) * tgtFPS / srcFPS)
		if cur > prev {
			out = append(out, i)
		}
		prev = cur
	}
	return out
}
