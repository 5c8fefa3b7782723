package audio

// FadeFrames is the length of the fade applied when playback starts or jumps.
const FadeFrames = 5

// Smoothstep returns 3t^2 - 2t^3 for t clamped to [0,1].
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// FadeIn scales frame by the smoothstep gain at progress (0 silent, 1 full).
func FadeIn(frame []int16, progress float64) []int16 {
	gain := Smoothstep(progress)
	out := make([]int16, len(frame))
	for i, s := range frame {
		out[i] = int16(float64(s) * gain)
	}
	return out
}

// CrossfadeFrames blends an outgoing frame with an incoming frame at the given
// progress (0.0 = all outgoing, 1.0 = all incoming). Both frames must have
// the same length.
func CrossfadeFrames(outgoing, incoming []int16, progress float64) []int16 {
	gain := Smoothstep(progress)
	result := make([]int16, len(outgoing))

	for i := range outgoing {
		mixed := float64(outgoing[i])*(1-gain) + float64(incoming[i])*gain
		if mixed > 32767 {
			mixed = 32767
		} else if mixed < -32768 {
			mixed = -32768
		}
		result[i] = int16(mixed)
	}
	return result
}
