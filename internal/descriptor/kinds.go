package descriptor

import (
	"fmt"
	"strings"
)

// Kind identifies one visual descriptor family.
type Kind uint8

const (
	DeepEmbedding Kind = 1 << iota
	ColorHistogram
	TexturePattern
	GradientShape
	EdgeOrientation
	LocalKeypoints
)

// AllKinds lists every descriptor kind in canonical order.
var AllKinds = []Kind{
	DeepEmbedding,
	ColorHistogram,
	TexturePattern,
	GradientShape,
	EdgeOrientation,
	LocalKeypoints,
}

// String returns the external name used in API requests and logs.
func (k Kind) String() string {
	switch k {
	case DeepEmbedding:
		return "vgg"
	case ColorHistogram:
		return "color"
	case TexturePattern:
		return "lbp"
	case GradientShape:
		return "hog"
	case EdgeOrientation:
		return "edge"
	case LocalKeypoints:
		return "sift"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Field returns the document field the descriptor vector is stored under.
func (k Kind) Field() string {
	switch k {
	case DeepEmbedding:
		return "vgg_features"
	case ColorHistogram:
		return "color_histogram"
	case TexturePattern:
		return "lbp_features"
	case GradientShape:
		return "hog_features"
	case EdgeOrientation:
		return "edge_histogram"
	case LocalKeypoints:
		return "sift_features"
	default:
		return ""
	}
}

// Dims returns the fixed vector length of the descriptor, or 0 for
// DeepEmbedding whose length depends on the configured network layer.
func (k Kind) Dims() int {
	switch k {
	case ColorHistogram:
		return 24
	case TexturePattern:
		return 10
	case GradientShape:
		return 81
	case EdgeOrientation:
		return 64
	case LocalKeypoints:
		return 128
	default:
		return 0
	}
}

// ParseKind maps an external name back to its Kind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "vgg", "vgg16", "vgg19", "deep":
		return DeepEmbedding, nil
	case "color", "color_histogram":
		return ColorHistogram, nil
	case "lbp", "texture":
		return TexturePattern, nil
	case "hog", "shape":
		return GradientShape, nil
	case "edge", "edge_histogram":
		return EdgeOrientation, nil
	case "sift", "keypoints":
		return LocalKeypoints, nil
	default:
		return 0, fmt.Errorf("unknown descriptor %q", name)
	}
}

// Set is a bitmask over descriptor kinds.
type Set uint8

// DefaultSet enables every descriptor.
const DefaultSet = Set(DeepEmbedding | ColorHistogram | TexturePattern | GradientShape | EdgeOrientation | LocalKeypoints)

func (s Set) Has(k Kind) bool { return uint8(s)&uint8(k) != 0 }

func (s Set) Add(k Kind) Set { return s | Set(k) }

func (s Set) Remove(k Kind) Set { return s &^ Set(k) }

func (s Set) IsEmpty() bool { return s == 0 }

// Kinds expands the set into its members in canonical order.
func (s Set) Kinds() []Kind {
	var out []Kind
	for _, k := range AllKinds {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// Len counts the enabled descriptors.
func (s Set) Len() int {
	n := 0
	for _, k := range AllKinds {
		if s.Has(k) {
			n++
		}
	}
	return n
}

func (s Set) String() string {
	names := make([]string, 0, 6)
	for _, k := range s.Kinds() {
		names = append(names, k.String())
	}
	return strings.Join(names, ",")
}

// ParseSet builds a Set from external names. An empty list yields DefaultSet.
func ParseSet(names []string) (Set, error) {
	if len(names) == 0 {
		return DefaultSet, nil
	}
	var s Set
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			return 0, err
		}
		s = s.Add(k)
	}
	return s, nil
}
