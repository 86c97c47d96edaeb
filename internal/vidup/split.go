package vidup

import "context"

// SplitPolicy decides whether a file must be cut into parts before it is
// sent with the given transport.
type SplitPolicy interface {
	ShouldSplit(fileSize int64, mode TransportMode) bool
}

// SplitPolicyFunc adapts a function to SplitPolicy.
type SplitPolicyFunc func(fileSize int64, mode TransportMode) bool

func (f SplitPolicyFunc) ShouldSplit(fileSize int64, mode TransportMode) bool {
	return f(fileSize, mode)
}

// SizeSplitPolicy splits files larger than the per-mode limit. Modes without
// a limit never split.
type SizeSplitPolicy struct {
	Limits map[TransportMode]int64
}

// NewSizeSplitPolicy builds a policy from the transports' own size caps.
func NewSizeSplitPolicy(transports ...Transport) SizeSplitPolicy {
	limits := make(map[TransportMode]int64, len(transports))
	for _, t := range transports {
		limits[t.Mode()] = t.MaxFileSize()
	}
	return SizeSplitPolicy{Limits: limits}
}

func (p SizeSplitPolicy) ShouldSplit(fileSize int64, mode TransportMode) bool {
	limit, ok := p.Limits[mode]
	return ok && limit > 0 && fileSize > limit
}

// Splitter cuts a video into playable parts no larger than maxPartSize,
// written into outDir. The caller removes the parts when done.
type Splitter interface {
	Split(ctx context.Context, path string, maxPartSize int64, outDir string) ([]string, error)
}
