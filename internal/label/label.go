package label

import "fmt"

// Source records how a label image was obtained.
type Source int

const (
	NoSource Source = iota
	Camera
	Replacement
)

func (s Source) String() string {
	return [...]string{"", "camera", "replacement"}[s]
}

func ParseSource(s string) (Source, error) {
	switch s {
	case "":
		return NoSource, nil
	case "camera":
		return Camera, nil
	case "replacement":
		return Replacement, nil
	default:
		return NoSource, fmt.Errorf("unknown label source %q", s)
	}
}

// Ref is a return label reference. It is closed over exactly three variants:
//
//	FastTrackToken  the lab already holds the physical label, never uploaded
//	CapturedImage   raw bytes held for this session only
//	HostedURL       durable, publicly fetchable image; terminal before cart creation
//
// CapturedImage -> HostedURL is the only transition between variants.
type Ref interface {
	isRef()
}

type FastTrackToken struct {
	Token string
}

type CapturedImage struct {
	Data     []byte
	MimeType string
	Source   Source
}

type HostedURL struct {
	URL    string
	Source Source
}

func (FastTrackToken) isRef() {}
func (CapturedImage) isRef()  {}
func (HostedURL) isRef()      {}

// SourceOf returns the source of image-backed refs and NoSource otherwise.
func SourceOf(ref Ref) Source {
	switch r := ref.(type) {
	case CapturedImage:
		return r.Source
	case HostedURL:
		return r.Source
	default:
		return NoSource
	}
}
