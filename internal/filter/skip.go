package filter

import "fmt"

const (
	DefaultMinSessionLength = 200

	// placeholderCost is the assumed average size of content hidden behind
	// one placeholder, used to estimate how much of a session was noise.
	// Deliberately a coarse constant, not an exact accounting.
	placeholderCost = 50

	// noiseThreshold is the estimated-noise fraction above which a session
	// is considered mostly tool output.
	noiseThreshold = 0.8
)

// SkipOptions configures the skip heuristic.
type SkipOptions struct {
	MinSessionLength int
	// SkipNoisySessions enables the mostly-tool-outputs rule.
	SkipNoisySessions bool
}

// DefaultSkipOptions returns default skip-heuristic options.
func DefaultSkipOptions() SkipOptions {
	return SkipOptions{
		MinSessionLength:  DefaultMinSessionLength,
		SkipNoisySessions: true,
	}
}

// SkipResult is the heuristic's decision. Reason is human-readable and used
// only for logging.
type SkipResult struct {
	Skip   bool
	Reason string
}

// ShouldSkip decides whether filtered transcript text is worth retaining.
// The two rules are independent; either alone skips.
func ShouldSkip(text string, opts SkipOptions) SkipResult {
	if opts.MinSessionLength <= 0 {
		opts.MinSessionLength = DefaultMinSessionLength
	}

	if len(text) < opts.MinSessionLength {
		return SkipResult{
			Skip:   true,
			Reason: fmt.Sprintf("session too short (%d chars, min %d)", len(text), opts.MinSessionLength),
		}
	}

	if opts.SkipNoisySessions {
		estimated := CountPlaceholders(text) * placeholderCost
		if float64(estimated) > noiseThreshold*float64(len(text)) {
			return SkipResult{
				Skip:   true,
				Reason: fmt.Sprintf("mostly tool outputs (estimated %d of %d chars filtered)", estimated, len(text)),
			}
		}
	}

	return SkipResult{}
}
